package notifications

import (
	"bytes"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// OrderConfirmation feeds the buyer confirmation templates.
type OrderConfirmation struct {
	OrderNumber   string
	ItemCount     int
	Shops         []string
	Subtotal      string
	Shipping      string
	Tax           string
	BuyerDonation string
	Donated       string
	Total         string
	OrderDate     string
}

const orderConfirmationSubject = "Order Confirmed - {{.OrderNumber}}"

const orderConfirmationText = `Thanks for your order!

Order: {{.OrderNumber}}
Placed: {{.OrderDate}}
Items: {{.ItemCount}}
Sold by: {{range $i, $s := .Shops}}{{if $i}}, {{end}}{{$s}}{{end}}

Subtotal: ${{.Subtotal}}
Shipping: ${{.Shipping}}
Tax: ${{.Tax}}
{{- if .BuyerDonation}}
Your donation: ${{.BuyerDonation}}
{{- end}}
Total: ${{.Total}}
{{if .Donated}}
Our sellers are giving ${{.Donated}} of this order to their nonprofit partners.
{{end}}`

const orderConfirmationHTML = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>Thanks for your order!</h2>
  <p><strong>Order:</strong> {{.OrderNumber}}<br><strong>Placed:</strong> {{.OrderDate}}</p>
  <p>{{.ItemCount}} item(s) from {{range $i, $s := .Shops}}{{if $i}}, {{end}}{{$s}}{{end}}</p>
  <table cellpadding="4">
    <tr><td>Subtotal</td><td>${{.Subtotal}}</td></tr>
    <tr><td>Shipping</td><td>${{.Shipping}}</td></tr>
    <tr><td>Tax</td><td>${{.Tax}}</td></tr>
    {{if .BuyerDonation}}<tr><td>Your donation</td><td>${{.BuyerDonation}}</td></tr>{{end}}
    <tr><td><strong>Total</strong></td><td><strong>${{.Total}}</strong></td></tr>
  </table>
  {{if .Donated}}<p>Our sellers are giving ${{.Donated}} of this order to their nonprofit partners.</p>{{end}}
</body>
</html>`

var (
	confirmationSubject = texttemplate.Must(texttemplate.New("subject").Parse(orderConfirmationSubject))
	confirmationText    = texttemplate.Must(texttemplate.New("text").Parse(orderConfirmationText))
	confirmationHTML    = htmltemplate.Must(htmltemplate.New("html").Parse(orderConfirmationHTML))
)

// RenderOrderConfirmation builds the buyer email addressed to `to`.
func RenderOrderConfirmation(to string, data OrderConfirmation) (Email, error) {
	var subject, text, html bytes.Buffer
	if err := confirmationSubject.Execute(&subject, data); err != nil {
		return Email{}, err
	}
	if err := confirmationText.Execute(&text, data); err != nil {
		return Email{}, err
	}
	if err := confirmationHTML.Execute(&html, data); err != nil {
		return Email{}, err
	}
	return Email{To: to, Subject: subject.String(), Text: text.String(), HTML: html.String()}, nil
}
