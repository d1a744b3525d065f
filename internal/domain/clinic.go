package domain

import "time"

// KnownAddresses are the ground-truth addresses a receipt is matched against.
// Either may be empty.
type KnownAddresses struct {
	Lot  string
	Road string
}

type Clinic struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	SidoNm      string    `json:"sidoNm"`
	SigunNm     string    `json:"sigunNm"`
	DongNm      string    `json:"dongNm"`
	LotAddress  string    `json:"lotAddress"`
	RoadAddress string    `json:"roadAddress"`
	Phone       string    `json:"phone,omitempty"`
	Rating      float64   `json:"rating"`
	ReviewCount int       `json:"reviewCount"`
	UpdateTime  time.Time `json:"updateTime"`
}

func (c Clinic) Addresses() KnownAddresses {
	return KnownAddresses{Lot: c.LotAddress, Road: c.RoadAddress}
}

// ClinicSearch filters clinics by administrative region and name.
// Empty fields are ignored.
type ClinicSearch struct {
	SidoNm  string
	SigunNm string
	DongNm  string
	Name    string
	Limit   int
}
