package sqlstore

import (
	"time"

	"github.com/goliatone/go-dispatch/core"
)

func newJobRecord(job core.Job, now time.Time) *jobRecord {
	record := &jobRecord{
		ID:            job.ID,
		ProviderID:    job.ProviderID,
		RemoteID:      job.RemoteID,
		CorrelationID: job.CorrelationID,
		UserID:        job.UserID,
		State:         string(job.State),
		Attempts:      job.Attempts,
		Error:         job.Error,
		Warnings:      append([]string{}, job.Warnings...),
		Metadata:      copyAnyMap(job.Metadata),
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     now,
	}
	if record.Warnings == nil {
		record.Warnings = []string{}
	}
	if job.Result != nil {
		record.Result = newResultDocument(*job.Result)
	}
	if job.LastPolledAt != nil {
		polled := job.LastPolledAt.UTC()
		record.LastPolledAt = &polled
	}
	if job.TerminalAt != nil {
		terminal := job.TerminalAt.UTC()
		record.TerminalAt = &terminal
	}
	return record
}

func (r *jobRecord) toDomain() core.Job {
	if r == nil {
		return core.Job{}
	}
	job := core.Job{
		ID:            r.ID,
		ProviderID:    r.ProviderID,
		RemoteID:      r.RemoteID,
		CorrelationID: r.CorrelationID,
		UserID:        r.UserID,
		State:         core.TaskState(r.State),
		Attempts:      r.Attempts,
		Error:         r.Error,
		Warnings:      append([]string(nil), r.Warnings...),
		Metadata:      copyAnyMap(r.Metadata),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Result != nil {
		result := r.Result.toDomain()
		job.Result = &result
	}
	if r.LastPolledAt != nil {
		polled := *r.LastPolledAt
		job.LastPolledAt = &polled
	}
	if r.TerminalAt != nil {
		terminal := *r.TerminalAt
		job.TerminalAt = &terminal
	}
	return job
}

func newResultDocument(result core.CanonicalResult) *resultDocument {
	return &resultDocument{
		URL:      result.URL,
		Key:      result.Key,
		Metadata: copyAnyMap(result.Metadata),
		Raw:      copyAnyMap(result.Raw),
	}
}

func (d *resultDocument) toDomain() core.CanonicalResult {
	if d == nil {
		return core.CanonicalResult{}
	}
	return core.CanonicalResult{
		URL:      d.URL,
		Key:      d.Key,
		Metadata: copyAnyMap(d.Metadata),
		Raw:      copyAnyMap(d.Raw),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
