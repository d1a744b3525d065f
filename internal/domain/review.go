package domain

import "time"

// ReviewSubmission is a validated review ready to be written. It is built once
// per accepted request and passed by value from then on.
type ReviewSubmission struct {
	ClinicID      int64
	UserID        string
	Rating        float64
	Comment       string
	ReceiptImage  string
	TreatmentName string
	SubmittedAt   time.Time
}

// Review is a persisted review row.
type Review struct {
	ID            int64     `json:"id"`
	ClinicID      int64     `json:"clinicId"`
	UserID        string    `json:"userId"`
	Rating        float64   `json:"rate"`
	Comment       string    `json:"comment"`
	TreatmentName string    `json:"treatmentNm"`
	ReceiptImage  string    `json:"receiptImage"`
	CreateTime    time.Time `json:"createTime"`
}

func (s ReviewSubmission) Review(id int64) Review {
	return Review{
		ID:            id,
		ClinicID:      s.ClinicID,
		UserID:        s.UserID,
		Rating:        s.Rating,
		Comment:       s.Comment,
		TreatmentName: s.TreatmentName,
		ReceiptImage:  s.ReceiptImage,
		CreateTime:    s.SubmittedAt,
	}
}

// ReviewSearch selects reviews either by clinic or by the clinic's region.
type ReviewSearch struct {
	ClinicID int64
	SidoNm   string
	SigunNm  string
	DongNm   string
	Limit    int
}

func (q ReviewSearch) Empty() bool {
	return q.ClinicID == 0 && q.SidoNm == "" && q.SigunNm == "" && q.DongNm == ""
}
