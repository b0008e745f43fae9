package models

import (
	"time"

	"github.com/elecmate/certsync/internal/common"
	"github.com/google/uuid"
)

// Draft is the live document behind one open form.
//
// The UI is the only writer. Sync components read it through Snapshot and
// never hold on to the Draft itself.
type Draft struct {
	// LocalID identifies the logical report on this device and is sent to
	// the store as client_ref.
	LocalID string
	// ReportID stays empty until the first successful cloud push.
	ReportID   string
	ReportType ReportType
	CustomerID string
	Status     ReportStatus
	// Version is the store version seen on the last push or pull.
	Version   int64
	UpdatedAt time.Time

	payload Payload

	certificateNumber string
	// certAssigned guards certificateNumber; it is per Draft, never global.
	certAssigned bool
}

func NewDraft(t ReportType) *Draft {
	return &Draft{
		LocalID:    uuid.NewString(),
		ReportType: t,
		Status:     StatusDraft,
		payload:    Payload{},
	}
}

func (d *Draft) CertificateNumber() string { return d.certificateNumber }

// HasCertificateNumber is the "already generated" guard consulted before
// calling the numbering service.
func (d *Draft) HasCertificateNumber() bool { return d.certAssigned }

// AssignCertificateNumber sets the number exactly once.
func (d *Draft) AssignCertificateNumber(n string) error {
	if n == "" {
		return common.ErrCertificateNumberRequired
	}
	if d.certAssigned {
		if n == d.certificateNumber {
			return nil
		}
		return common.ErrCertificateNumberImmutable
	}
	d.certificateNumber = n
	d.certAssigned = true
	return nil
}

// Set writes one form field. The certificate number can not be set this way.
func (d *Draft) Set(field string, value any) error {
	if field == CertificateNumberField {
		return common.ErrCertificateNumberImmutable
	}
	if d.payload == nil {
		d.payload = Payload{}
	}
	d.payload[field] = value
	return nil
}

func (d *Draft) Get(field string) (any, bool) {
	v, ok := d.payload[field]
	return v, ok
}

func (d *Draft) Unset(field string) {
	delete(d.payload, field)
}

// Payload returns a copy of the form fields.
func (d *Draft) Payload() Payload {
	return d.payload.Clone()
}

// Merge overlays recovered fields on the current ones. A recovered
// certificate number is ignored and reported as ErrCertificateNumberImmutable
// when it differs from the number already held.
func (d *Draft) Merge(p Payload) error {
	var err error
	if n, ok := p[CertificateNumberField].(string); ok && d.certAssigned && n != d.certificateNumber {
		err = common.ErrCertificateNumberImmutable
	}
	rest := p.Clone()
	delete(rest, CertificateNumberField)
	d.payload = d.payload.Merge(rest)
	return err
}

// Complete marks the report as finished.
func (d *Draft) Complete() {
	d.Status = StatusCompleted
}

// Duplicate forks a new Draft of the same type with a new local identity,
// the given certificate number and no server metadata.
func (d *Draft) Duplicate(certificateNumber string) (*Draft, error) {
	dup := NewDraft(d.ReportType)
	dup.CustomerID = d.CustomerID
	dup.payload = d.payload.WithoutVolatile()
	delete(dup.payload, CertificateNumberField)
	if err := dup.AssignCertificateNumber(certificateNumber); err != nil {
		return nil, err
	}
	return dup, nil
}

// DraftSnapshot is the immutable, serialisable form of a Draft used for
// local persistence, queueing and the wire.
type DraftSnapshot struct {
	LocalID           string       `json:"local_id"`
	ReportID          string       `json:"report_id,omitempty"`
	ReportType        ReportType   `json:"report_type"`
	CustomerID        string       `json:"customer_id,omitempty"`
	CertificateNumber string       `json:"certificate_number"`
	Status            ReportStatus `json:"status"`
	Version           int64        `json:"version"`
	Payload           Payload      `json:"payload"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (d *Draft) Snapshot() DraftSnapshot {
	return DraftSnapshot{
		LocalID:           d.LocalID,
		ReportID:          d.ReportID,
		ReportType:        d.ReportType,
		CustomerID:        d.CustomerID,
		CertificateNumber: d.certificateNumber,
		Status:            d.Status,
		Version:           d.Version,
		Payload:           d.payload.Clone(),
		UpdatedAt:         d.UpdatedAt,
	}
}

// FromSnapshot rebuilds a Draft. A non-empty certificate number arrives
// already guarded.
func FromSnapshot(s DraftSnapshot) *Draft {
	d := &Draft{
		LocalID:    s.LocalID,
		ReportID:   s.ReportID,
		ReportType: s.ReportType,
		CustomerID: s.CustomerID,
		Status:     s.Status,
		Version:    s.Version,
		UpdatedAt:  s.UpdatedAt,
		payload:    s.Payload.Clone(),
	}
	if d.LocalID == "" {
		d.LocalID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = StatusDraft
	}
	if s.CertificateNumber != "" {
		d.certificateNumber = s.CertificateNumber
		d.certAssigned = true
	}
	return d
}
