package qdrant

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/docdex/docdex/internal/store"
)

// hashPrefixLen bounds the content-hash portion of a document point key.
const hashPrefixLen = 12

// documentPointID derives a stable UUID for a document chunk. Qdrant point
// ids must be integers or UUIDs, so the composite key is folded through
// uuid v5; re-indexing the same chunk position of the same version always
// lands on the same point.
func documentPointID(libraryID, versionID uuid.UUID, chunkIndex int, contentHash string) uuid.UUID {
	prefix := contentHash
	if len(prefix) > hashPrefixLen {
		prefix = prefix[:hashPrefixLen]
	}
	key := fmt.Sprintf("%s:%s:%d:%s", libraryID, versionID, chunkIndex, prefix)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("docdex:"+key))
}

func libraryPayload(lib *store.Library) map[string]any {
	return map[string]any{
		"kind":           kindLibrary,
		"org":            lib.Org,
		"project":        lib.Project,
		"name":           lib.Name,
		"identifier":     lib.Identifier,
		"repository_url": lib.RepositoryURL,
		"homepage_url":   lib.HomepageURL,
		"description":    lib.Description,
		"trust_score":    int64(lib.TrustScore),
		"metadata":       toAnyMap(lib.Metadata),
		"created_at":     lib.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":     lib.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func libraryFromPayload(id uuid.UUID, p map[string]*qdrant.Value) *store.Library {
	r := payloadReader{p}
	return &store.Library{
		ID:            id,
		Org:           r.str("org"),
		Project:       r.str("project"),
		Name:          r.str("name"),
		Identifier:    r.str("identifier"),
		RepositoryURL: r.str("repository_url"),
		HomepageURL:   r.str("homepage_url"),
		Description:   r.str("description"),
		TrustScore:    int(r.i64("trust_score")),
		Metadata:      r.strMap("metadata"),
		CreatedAt:     r.time("created_at"),
		UpdatedAt:     r.time("updated_at"),
	}
}

func versionPayload(v *store.Version) map[string]any {
	p := map[string]any{
		"kind":               kindVersion,
		"library_id":         v.LibraryID.String(),
		"version_string":     v.VersionString,
		"version_normalized": v.VersionNormalized,
		"git_commit_sha":     v.GitCommitSHA,
		"is_latest":          v.IsLatest,
		"is_deprecated":      v.IsDeprecated,
		"document_count":     int64(v.DocumentCount),
		"updated_at":         v.UpdatedAt.Format(time.RFC3339Nano),
	}
	if v.ReleaseDate != nil {
		p["release_date"] = v.ReleaseDate.Format(time.RFC3339Nano)
	}
	if !v.IndexedAt.IsZero() {
		p["indexed_at"] = v.IndexedAt.Format(time.RFC3339Nano)
	}
	return p
}

func versionFromPayload(id uuid.UUID, p map[string]*qdrant.Value) *store.Version {
	r := payloadReader{p}
	v := &store.Version{
		ID:                id,
		LibraryID:         r.uuid("library_id"),
		VersionString:     r.str("version_string"),
		VersionNormalized: r.str("version_normalized"),
		GitCommitSHA:      r.str("git_commit_sha"),
		IsLatest:          r.boolean("is_latest"),
		IsDeprecated:      r.boolean("is_deprecated"),
		DocumentCount:     int(r.i64("document_count")),
		IndexedAt:         r.time("indexed_at"),
		UpdatedAt:         r.time("updated_at"),
	}
	if t := r.time("release_date"); !t.IsZero() {
		v.ReleaseDate = &t
	}
	return v
}

func documentPayload(doc *store.Document) map[string]any {
	return map[string]any{
		"kind":         kindDocument,
		"library_id":   doc.LibraryID.String(),
		"version_id":   doc.VersionID.String(),
		"title":        doc.Title,
		"content":      doc.Content,
		"content_hash": doc.ContentHash,
		"chunk_index":  int64(doc.ChunkIndex),
		"hierarchy":    toAnySlice(doc.Hierarchy),
		"source_url":   doc.SourceURL,
		"source_type":  doc.SourceType,
		"source_path":  doc.SourcePath,
		"language":     doc.Language,
		"has_code":     doc.HasCode,
		"code_lang":    doc.CodeLang,
		"metadata":     toAnyMap(doc.Metadata),
		"indexed_at":   doc.IndexedAt.Format(time.RFC3339Nano),
		"updated_at":   doc.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func documentFromPayload(id uuid.UUID, p map[string]*qdrant.Value) *store.Document {
	r := payloadReader{p}
	return &store.Document{
		ID:          id,
		LibraryID:   r.uuid("library_id"),
		VersionID:   r.uuid("version_id"),
		Title:       r.str("title"),
		Content:     r.str("content"),
		ContentHash: r.str("content_hash"),
		ChunkIndex:  int(r.i64("chunk_index")),
		Hierarchy:   r.strs("hierarchy"),
		SourceURL:   r.str("source_url"),
		SourceType:  r.str("source_type"),
		SourcePath:  r.str("source_path"),
		Language:    r.str("language"),
		HasCode:     r.boolean("has_code"),
		CodeLang:    r.str("code_lang"),
		Metadata:    r.strMap("metadata"),
		IndexedAt:   r.time("indexed_at"),
		UpdatedAt:   r.time("updated_at"),
	}
}

func jobPayload(job *store.IndexingJob) map[string]any {
	p := map[string]any{
		"kind":                kindJob,
		"library_id":          job.LibraryID.String(),
		"version_id":          job.VersionID.String(),
		"status":              string(job.Status),
		"total_documents":     int64(job.TotalDocuments),
		"processed_documents": int64(job.ProcessedDocuments),
		"failed_documents":    int64(job.FailedDocuments),
		"error":               job.Error,
		"metadata":            toAnyMap(job.Metadata),
		"created_at":          job.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":          job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if job.StartedAt != nil {
		p["started_at"] = job.StartedAt.Format(time.RFC3339Nano)
	}
	if job.CompletedAt != nil {
		p["completed_at"] = job.CompletedAt.Format(time.RFC3339Nano)
	}
	return p
}

func jobFromPayload(id uuid.UUID, p map[string]*qdrant.Value) *store.IndexingJob {
	r := payloadReader{p}
	job := &store.IndexingJob{
		ID:                 id,
		LibraryID:          r.uuid("library_id"),
		VersionID:          r.uuid("version_id"),
		Status:             store.JobStatus(r.str("status")),
		TotalDocuments:     int(r.i64("total_documents")),
		ProcessedDocuments: int(r.i64("processed_documents")),
		FailedDocuments:    int(r.i64("failed_documents")),
		Error:              r.str("error"),
		Metadata:           r.strMap("metadata"),
		CreatedAt:          r.time("created_at"),
		UpdatedAt:          r.time("updated_at"),
	}
	if t := r.time("started_at"); !t.IsZero() {
		job.StartedAt = &t
	}
	if t := r.time("completed_at"); !t.IsZero() {
		job.CompletedAt = &t
	}
	return job
}

// payloadReader pulls typed fields out of a point payload. Missing keys
// yield zero values.
type payloadReader struct {
	p map[string]*qdrant.Value
}

func (r payloadReader) str(key string) string {
	if v, ok := r.p[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func (r payloadReader) i64(key string) int64 {
	if v, ok := r.p[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}

func (r payloadReader) boolean(key string) bool {
	if v, ok := r.p[key]; ok {
		return v.GetBoolValue()
	}
	return false
}

func (r payloadReader) time(key string) time.Time {
	s := r.str(key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (r payloadReader) uuid(key string) uuid.UUID {
	id, err := uuid.Parse(r.str(key))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (r payloadReader) strs(key string) []string {
	v, ok := r.p[key]
	if !ok {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.Values))
	for _, item := range list.Values {
		out = append(out, item.GetStringValue())
	}
	return out
}

func (r payloadReader) strMap(key string) map[string]string {
	v, ok := r.p[key]
	if !ok {
		return map[string]string{}
	}
	st := v.GetStructValue()
	if st == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(st.Fields))
	for k, item := range st.Fields {
		out[k] = item.GetStringValue()
	}
	return out
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
