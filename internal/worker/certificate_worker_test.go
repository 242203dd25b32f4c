package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/model"
)

type fakeWriter struct {
	mu      sync.Mutex
	bulkErr error
	failFor map[string]bool
	bulk    [][]model.CertificateRequest
	singles []string
}

func (f *fakeWriter) BulkIssue(_ context.Context, batch []model.CertificateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkErr != nil {
		return f.bulkErr
	}
	f.bulk = append(f.bulk, append([]model.CertificateRequest(nil), batch...))
	return nil
}

func (f *fakeWriter) Issue(_ context.Context, req model.CertificateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[req.AttemptID] {
		return errors.New("insert failed")
	}
	f.singles = append(f.singles, req.AttemptID)
	return nil
}

func newTestWorker(w *fakeWriter) (*CertificateWorker, *[]model.CertificateRequest) {
	var requeued []model.CertificateRequest
	worker := &CertificateWorker{
		certs: w,
		requeue: func(_ context.Context, req model.CertificateRequest) error {
			requeued = append(requeued, req)
			return nil
		},
		log: zerolog.Nop(),
	}
	return worker, &requeued
}

func certRequests(ids ...string) []model.CertificateRequest {
	out := make([]model.CertificateRequest, len(ids))
	for i, id := range ids {
		out[i] = model.CertificateRequest{AttemptID: id, ExamID: "exam", StudentID: i + 1, Percentage: 80}
	}
	return out
}

func TestCertificateWorker_FlushBulk(t *testing.T) {
	writer := &fakeWriter{}
	w, requeued := newTestWorker(writer)

	w.flush(context.Background(), certRequests("a", "b", "c"))

	if len(writer.bulk) != 1 || len(writer.bulk[0]) != 3 {
		t.Fatalf("bulk calls = %v, want one batch of 3", writer.bulk)
	}
	if len(writer.singles) != 0 || len(*requeued) != 0 {
		t.Errorf("fallback used: singles=%v requeued=%v", writer.singles, *requeued)
	}
}

func TestCertificateWorker_FlushFallbackRequeuesFailures(t *testing.T) {
	writer := &fakeWriter{
		bulkErr: errors.New("deadlock detected"),
		failFor: map[string]bool{"b": true},
	}
	w, requeued := newTestWorker(writer)

	w.flush(context.Background(), certRequests("a", "b", "c"))

	if len(writer.singles) != 2 || writer.singles[0] != "a" || writer.singles[1] != "c" {
		t.Errorf("singles = %v, want [a c]", writer.singles)
	}
	if len(*requeued) != 1 || (*requeued)[0].AttemptID != "b" {
		t.Errorf("requeued = %v, want [b]", *requeued)
	}
}

func TestCertificateWorker_FlushEmptyBatch(t *testing.T) {
	writer := &fakeWriter{}
	w, _ := newTestWorker(writer)

	w.flush(context.Background(), nil)

	if len(writer.bulk) != 0 {
		t.Errorf("empty batch reached the writer: %v", writer.bulk)
	}
}

func TestDecodeCertificateRequest(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"attempt_id":"a","exam_id":"e","student_id":3,"percentage":90}`, false},
		{"not json", `{`, true},
		{"missing attempt", `{"exam_id":"e","student_id":3}`, true},
		{"missing student", `{"attempt_id":"a","exam_id":"e"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeCertificateRequest(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
