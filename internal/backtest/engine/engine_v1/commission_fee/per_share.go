package commission_fee

// PerShareCommissionFee charges a flat amount per share with an optional
// minimum per order, the way most US equity brokers do.
type PerShareCommissionFee struct {
	perShare float64
	minimum  float64
}

func NewPerShareCommissionFee(perShare float64, minimum float64) CommissionFee {
	return &PerShareCommissionFee{
		perShare: perShare,
		minimum:  minimum,
	}
}

func (c *PerShareCommissionFee) Calculate(quantity float64, _ float64) float64 {
	if quantity <= 0 {
		return 0
	}

	fee := c.perShare * quantity
	if fee < c.minimum {
		return c.minimum
	}

	return fee
}
