package reportsync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/elecmate/certsync/internal/client/models"
)

// canonical is what a fingerprint covers. encoding/json writes map keys
// in sorted order, so equal documents always encode to equal bytes.
type canonical struct {
	CertificateNumber string              `json:"certificate_number"`
	CustomerID        string              `json:"customer_id"`
	Status            models.ReportStatus `json:"status"`
	Payload           models.Payload      `json:"payload"`
}

// Fingerprint identifies the user-visible content of a snapshot. Volatile
// payload keys, the report id, version and timestamps do not take part.
func Fingerprint(s models.DraftSnapshot) (string, error) {
	b, err := json.Marshal(canonical{
		CertificateNumber: s.CertificateNumber,
		CustomerID:        s.CustomerID,
		Status:            s.Status,
		Payload:           s.Payload.WithoutVolatile(),
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Detector remembers the fingerprints last persisted locally and last
// acknowledged by the cloud for the open draft.
type Detector struct {
	mu        sync.Mutex
	persisted string
	synced    string
}

// Dirty reports whether fp differs from the last local save.
func (d *Detector) Dirty(fp string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fp == "" || fp != d.persisted
}

// Synced reports whether fp is exactly what the cloud holds.
func (d *Detector) Synced(fp string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fp != "" && fp == d.synced
}

func (d *Detector) MarkPersisted(fp string) {
	d.mu.Lock()
	d.persisted = fp
	d.mu.Unlock()
}

func (d *Detector) MarkSynced(fp string) {
	d.mu.Lock()
	d.synced = fp
	d.mu.Unlock()
}

func (d *Detector) Reset(persisted, synced string) {
	d.mu.Lock()
	d.persisted = persisted
	d.synced = synced
	d.mu.Unlock()
}
