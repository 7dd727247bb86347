package enums

// SettlementFactType is the fact_type column of settlement_facts.
type SettlementFactType string

const (
	SettlementFactSale            SettlementFactType = "sale"
	SettlementFactPayout          SettlementFactType = "payout"
	SettlementFactNonprofitPayout SettlementFactType = "nonprofit_payout"
)

func (s SettlementFactType) IsValid() bool {
	return member(s, SettlementFactSale, SettlementFactPayout, SettlementFactNonprofitPayout)
}
