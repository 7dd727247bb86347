package enums

// DonationStatus tracks whether a donation obligation reached the nonprofit.
type DonationStatus string

const (
	DonationStatusPending DonationStatus = "PENDING"
	DonationStatusPaid    DonationStatus = "PAID"
)

func (s DonationStatus) IsValid() bool {
	return member(s, DonationStatusPending, DonationStatusPaid)
}

// DonorType tags who funded a donation.
type DonorType string

const (
	DonorTypeSellerContribution DonorType = "SELLER_CONTRIBUTION"
	DonorTypeBuyerDirect        DonorType = "BUYER_DIRECT"
	DonorTypePlatformRevenue    DonorType = "PLATFORM_REVENUE"
)

func (d DonorType) IsValid() bool {
	return member(d, DonorTypeSellerContribution, DonorTypeBuyerDirect, DonorTypePlatformRevenue)
}
