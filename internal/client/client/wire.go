package client

import (
	"time"

	"github.com/elecmate/certsync/internal/client/models"
	pb "github.com/elecmate/certsync/internal/proto"
)

func saveReportBody(s models.DraftSnapshot) map[string]any {
	body := map[string]any{
		"client_ref":         s.LocalID,
		"report_type":        string(s.ReportType),
		"certificate_number": s.CertificateNumber,
		"status":             string(s.Status),
		"payload":            map[string]any(s.Payload.Clone()),
	}
	if s.ReportID != "" {
		body["report_id"] = s.ReportID
	}
	if s.CustomerID != "" {
		body["customer_id"] = s.CustomerID
	}
	return body
}

func decodeSaveResult(data map[string]any) SaveResult {
	res := SaveResult{
		ReportID: pb.String(data, "report_id"),
		Version:  pb.Int64(data, "version"),
	}
	if ts := pb.String(data, "updated_at"); ts != "" {
		res.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return res
}

func decodeReport(r map[string]any) models.DraftSnapshot {
	s := models.DraftSnapshot{
		LocalID:           pb.String(r, "client_ref"),
		ReportID:          pb.String(r, "report_id"),
		ReportType:        models.ReportType(pb.String(r, "report_type")),
		CustomerID:        pb.String(r, "customer_id"),
		CertificateNumber: pb.String(r, "certificate_number"),
		Status:            models.ReportStatus(pb.String(r, "status")),
		Version:           pb.Int64(r, "version"),
		Payload:           models.Payload(pb.Map(r, "payload")).Clone(),
	}
	if ts := pb.String(r, "updated_at"); ts != "" {
		s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return s
}
