package enums

// OrderStatus tracks fulfillment of a settled order. Settlement always
// writes PROCESSING; later states belong to fulfillment.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool {
	return member(s, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled)
}
