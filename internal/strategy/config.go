package strategy

// Config carries the parameters of every variant. Build reads only the
// section that matches the selected kind.
type Config struct {
	MarketMaking MarketMakingConfig `json:"marketMaking" yaml:"market_making"`
	Basis        BasisConfig        `json:"basis" yaml:"basis"`
	Pairs        PairsConfig        `json:"pairs" yaml:"pairs"`
	Triangular   TriangularConfig   `json:"triangular" yaml:"triangular"`
	Learner      LearnerConfig      `json:"learner" yaml:"learner"`
}

type MarketMakingConfig struct {
	Instrument    string  `json:"instrument" yaml:"instrument" default:"SIM" validate:"required"`
	HalfSpread    float64 `json:"halfSpread" yaml:"half_spread" default:"0.1" validate:"gt=0"`
	Size          float64 `json:"size" yaml:"size" default:"1" validate:"gt=0"`
	InvLimit      float64 `json:"invLimit" yaml:"inv_limit" default:"10" validate:"gt=0"`
	InvSpreadMult float64 `json:"invSpreadMult" yaml:"inv_spread_mult" default:"1" validate:"gte=0"`
}

type BasisConfig struct {
	Synthetic string             `json:"synthetic" yaml:"synthetic" default:"SIMETF" validate:"required"`
	Weights   map[string]float64 `json:"weights" yaml:"weights" default:"{\"AAA\":0.5,\"BBB\":0.3,\"CCC\":0.2}" validate:"required,min=1,dive,keys,required,endkeys,gt=0"`
	Lookback  int                `json:"lookback" yaml:"lookback" default:"50" validate:"min=1"`
	EntryBps  float64            `json:"entryBps" yaml:"entry_bps" default:"3" validate:"gt=0"`
	ExitBps   float64            `json:"exitBps" yaml:"exit_bps" default:"0.5" validate:"gte=0,ltfield=EntryBps"`
	Size      float64            `json:"size" yaml:"size" default:"10" validate:"gt=0"`
	PosLimit  float64            `json:"posLimit" yaml:"pos_limit" default:"100" validate:"gt=0"`
}

type PairsConfig struct {
	LegA     string  `json:"legA" yaml:"leg_a" default:"AAA" validate:"required"`
	LegB     string  `json:"legB" yaml:"leg_b" default:"BBB" validate:"required,nefield=LegA"`
	Lookback int     `json:"lookback" yaml:"lookback" default:"100" validate:"min=2"`
	Beta     float64 `json:"beta" yaml:"beta" default:"1" validate:"gt=0"`
	EntryZ   float64 `json:"entryZ" yaml:"entry_z" default:"2" validate:"gt=0"`
	ExitZ    float64 `json:"exitZ" yaml:"exit_z" default:"0.5" validate:"gte=0,ltfield=EntryZ"`
	Size     float64 `json:"size" yaml:"size" default:"10" validate:"gt=0"`
	PosLimit float64 `json:"posLimit" yaml:"pos_limit" default:"100" validate:"gt=0"`
}

// TriangularConfig trades the cycle between currencies A, B and C through
// the pairs A/B, B/C and A/C.
type TriangularConfig struct {
	CurrencyA string  `json:"currencyA" yaml:"currency_a" default:"EUR" validate:"required"`
	CurrencyB string  `json:"currencyB" yaml:"currency_b" default:"USD" validate:"required,nefield=CurrencyA"`
	CurrencyC string  `json:"currencyC" yaml:"currency_c" default:"JPY" validate:"required,nefield=CurrencyA,nefield=CurrencyB"`
	EntryBps  float64 `json:"entryBps" yaml:"entry_bps" default:"1" validate:"gte=0"`
	FeeBps    float64 `json:"feeBps" yaml:"fee_bps" default:"0.2" validate:"gte=0"`
	Size      float64 `json:"size" yaml:"size" default:"10000" validate:"gt=0"`
	PosLimit  float64 `json:"posLimit" yaml:"pos_limit" default:"5000000" validate:"gt=0"`
}

type LearnerConfig struct {
	Instrument   string  `json:"instrument" yaml:"instrument" default:"SIM" validate:"required"`
	Levels       int     `json:"levels" yaml:"levels" default:"5" validate:"min=1,max=50"`
	Theta        float64 `json:"theta" yaml:"theta" default:"0.05" validate:"gte=0,lt=0.5"`
	LearningRate float64 `json:"learningRate" yaml:"learning_rate" default:"0.01" validate:"gt=0"`
	OrderQty     float64 `json:"orderQty" yaml:"order_qty" default:"1000" validate:"gt=0"`
	MaxPos       float64 `json:"maxPos" yaml:"max_pos" default:"10000" validate:"gt=0"`
}

// Pairs returns the three pair names in A/B, B/C, A/C order.
func (c TriangularConfig) Pairs() (ab, bc, ac string) {
	return c.CurrencyA + "/" + c.CurrencyB, c.CurrencyB + "/" + c.CurrencyC, c.CurrencyA + "/" + c.CurrencyC
}
