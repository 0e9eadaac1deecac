package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/docdex/docdex/internal/store"
)

// scrollPageSize bounds metadata scans. Libraries, versions, and jobs are
// orders of magnitude fewer than documents, so one page suffices.
const scrollPageSize = 1024

// upsertMeta writes a zero-vector metadata point.
func (s *Store) upsertMeta(ctx context.Context, id uuid.UUID, payload map[string]any) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(id.String()),
			Vectors: qdrant.NewVectors(s.zeroVector()...),
			Payload: qdrant.NewValueMap(payload),
		}},
		Wait: qdrant.PtrOf(true),
	})
	return err
}

// getPoint fetches one point with payload; nil when the id is unknown.
func (s *Store) getPoint(ctx context.Context, id uuid.UUID) (*qdrant.RetrievedPoint, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id.String())},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}
	return points[0], nil
}

// getKind fetches a point and checks its payload kind.
func (s *Store) getKind(ctx context.Context, id uuid.UUID, kind, op string) (*qdrant.RetrievedPoint, error) {
	point, err := s.getPoint(ctx, id)
	if err != nil {
		return nil, wrap(op, err)
	}
	if point == nil || payloadKind(point.Payload) != kind {
		return nil, fmt.Errorf("%s %s: %w", op, id, store.ErrNotFound)
	}
	return point, nil
}

// scrollKind pages through points of one kind with extra filter conditions.
func (s *Store) scrollKind(ctx context.Context, kind string, conditions ...*qdrant.Condition) ([]*qdrant.RetrievedPoint, error) {
	filter := kindFilter(kind)
	filter.Must = append(filter.Must, conditions...)

	return s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
}

// deletePoints removes points by id.
func (s *Store) deletePoints(ctx context.Context, ids ...uuid.UUID) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id.String())
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           qdrant.PtrOf(true),
	})
	return err
}

// deleteByFilter removes every point matching the filter.
func (s *Store) deleteByFilter(ctx context.Context, filter *qdrant.Filter) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
		Wait:           qdrant.PtrOf(true),
	})
	return err
}

func payloadKind(p map[string]*qdrant.Value) string {
	if v, ok := p["kind"]; ok {
		return v.GetStringValue()
	}
	return ""
}

func pointUUID(point *qdrant.RetrievedPoint) uuid.UUID {
	id, err := uuid.Parse(point.Id.GetUuid())
	if err != nil {
		return uuid.Nil
	}
	return id
}

// CreateLibrary stores a library as a metadata point, computing its
// identifier when unset.
func (s *Store) CreateLibrary(ctx context.Context, lib *store.Library) error {
	if lib.Org == "" || lib.Project == "" {
		return fmt.Errorf("%w: library org and project are required", store.ErrValidation)
	}
	if lib.ID == uuid.Nil {
		lib.ID = uuid.New()
	}
	if lib.Identifier == "" {
		lib.Identifier = store.MakeIdentifier(lib.Org, lib.Project)
	}
	if lib.Name == "" {
		lib.Name = lib.Project
	}
	if lib.Metadata == nil {
		lib.Metadata = map[string]string{}
	}

	if _, err := s.GetLibraryByIdentifier(ctx, lib.Identifier); err == nil {
		return fmt.Errorf("creating library %s: %w", lib.Identifier, store.ErrDuplicate)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	now := time.Now().UTC()
	lib.CreatedAt = now
	lib.UpdatedAt = now
	if err := s.upsertMeta(ctx, lib.ID, libraryPayload(lib)); err != nil {
		return wrap("creating library", err)
	}

	s.logger.Debug("created library", "identifier", lib.Identifier, "id", lib.ID)
	return nil
}

// GetLibrary fetches a library by id.
func (s *Store) GetLibrary(ctx context.Context, id uuid.UUID) (*store.Library, error) {
	point, err := s.getKind(ctx, id, kindLibrary, "getting library")
	if err != nil {
		return nil, err
	}
	return libraryFromPayload(id, point.Payload), nil
}

// GetLibraryByIdentifier fetches a library by its "/org/project" identifier.
func (s *Store) GetLibraryByIdentifier(ctx context.Context, identifier string) (*store.Library, error) {
	points, err := s.scrollKind(ctx, kindLibrary, qdrant.NewMatch("identifier", identifier))
	if err != nil {
		return nil, wrap("getting library by identifier", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("getting library %s: %w", identifier, store.ErrNotFound)
	}
	return libraryFromPayload(pointUUID(points[0]), points[0].Payload), nil
}

// SearchLibraries substring-matches name against library names and
// identifiers, case-insensitively, ordered by trust score descending.
func (s *Store) SearchLibraries(ctx context.Context, name string, limit int) ([]*store.Library, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	points, err := s.scrollKind(ctx, kindLibrary)
	if err != nil {
		return nil, wrap("searching libraries", err)
	}

	needle := strings.ToLower(name)
	var libs []*store.Library
	for _, point := range points {
		lib := libraryFromPayload(pointUUID(point), point.Payload)
		if strings.Contains(strings.ToLower(lib.Name), needle) ||
			strings.Contains(strings.ToLower(lib.Identifier), needle) {
			libs = append(libs, lib)
		}
	}

	sort.Slice(libs, func(i, j int) bool {
		if libs[i].TrustScore != libs[j].TrustScore {
			return libs[i].TrustScore > libs[j].TrustScore
		}
		return libs[i].Name < libs[j].Name
	})
	if len(libs) > limit {
		libs = libs[:limit]
	}
	return libs, nil
}

// UpdateLibrary rewrites a library point.
func (s *Store) UpdateLibrary(ctx context.Context, lib *store.Library) error {
	if _, err := s.getKind(ctx, lib.ID, kindLibrary, "updating library"); err != nil {
		return err
	}
	lib.UpdatedAt = time.Now().UTC()
	if err := s.upsertMeta(ctx, lib.ID, libraryPayload(lib)); err != nil {
		return wrap("updating library", err)
	}
	return nil
}

// DeleteLibrary removes a library and everything tagged with its id:
// versions, documents, and jobs.
func (s *Store) DeleteLibrary(ctx context.Context, id uuid.UUID) error {
	if _, err := s.getKind(ctx, id, kindLibrary, "deleting library"); err != nil {
		return err
	}

	cascade := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("library_id", id.String())},
	}
	if err := s.deleteByFilter(ctx, cascade); err != nil {
		return wrap("deleting library dependents", err)
	}
	if err := s.deletePoints(ctx, id); err != nil {
		return wrap("deleting library", err)
	}

	s.logger.Debug("deleted library", "id", id)
	return nil
}

// CreateVersion stores a version point, clearing the latest flag off the
// previous holder when the new version claims it.
func (s *Store) CreateVersion(ctx context.Context, v *store.Version) error {
	if v.LibraryID == uuid.Nil {
		return fmt.Errorf("%w: version requires a library id", store.ErrValidation)
	}
	if v.VersionString == "" {
		return fmt.Errorf("%w: version string is required", store.ErrValidation)
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.VersionNormalized == "" {
		v.VersionNormalized = store.NormalizeVersion(v.VersionString)
	}

	if _, err := s.GetVersionByString(ctx, v.LibraryID, v.VersionString); err == nil {
		return fmt.Errorf("creating version %s: %w", v.VersionString, store.ErrDuplicate)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if v.IsLatest {
		if err := s.clearLatest(ctx, v.LibraryID); err != nil {
			return err
		}
	}

	v.UpdatedAt = time.Now().UTC()
	if err := s.upsertMeta(ctx, v.ID, versionPayload(v)); err != nil {
		return wrap("creating version", err)
	}

	s.logger.Debug("created version",
		"library_id", v.LibraryID, "version", v.VersionString, "latest", v.IsLatest)
	return nil
}

func (s *Store) clearLatest(ctx context.Context, libraryID uuid.UUID) error {
	points, err := s.scrollKind(ctx, kindVersion,
		qdrant.NewMatch("library_id", libraryID.String()),
		qdrant.NewMatchBool("is_latest", true))
	if err != nil {
		return wrap("finding previous latest version", err)
	}
	for _, point := range points {
		prev := versionFromPayload(pointUUID(point), point.Payload)
		prev.IsLatest = false
		prev.UpdatedAt = time.Now().UTC()
		if err := s.upsertMeta(ctx, prev.ID, versionPayload(prev)); err != nil {
			return wrap("clearing previous latest version", err)
		}
	}
	return nil
}

// GetVersion fetches a version by id.
func (s *Store) GetVersion(ctx context.Context, id uuid.UUID) (*store.Version, error) {
	point, err := s.getKind(ctx, id, kindVersion, "getting version")
	if err != nil {
		return nil, err
	}
	return versionFromPayload(id, point.Payload), nil
}

// GetVersionByString fetches a library's version by its raw version string.
func (s *Store) GetVersionByString(ctx context.Context, libraryID uuid.UUID, versionString string) (*store.Version, error) {
	points, err := s.scrollKind(ctx, kindVersion,
		qdrant.NewMatch("library_id", libraryID.String()),
		qdrant.NewMatch("version_string", versionString))
	if err != nil {
		return nil, wrap("getting version by string", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("getting version %s: %w", versionString, store.ErrNotFound)
	}
	return versionFromPayload(pointUUID(points[0]), points[0].Payload), nil
}

// GetLatestVersion fetches the version flagged latest.
func (s *Store) GetLatestVersion(ctx context.Context, libraryID uuid.UUID) (*store.Version, error) {
	points, err := s.scrollKind(ctx, kindVersion,
		qdrant.NewMatch("library_id", libraryID.String()),
		qdrant.NewMatchBool("is_latest", true))
	if err != nil {
		return nil, wrap("getting latest version", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("getting latest version for %s: %w", libraryID, store.ErrNotFound)
	}
	return versionFromPayload(pointUUID(points[0]), points[0].Payload), nil
}

// ListVersions returns a library's versions, newest first by normalized
// version order.
func (s *Store) ListVersions(ctx context.Context, libraryID uuid.UUID) ([]*store.Version, error) {
	points, err := s.scrollKind(ctx, kindVersion,
		qdrant.NewMatch("library_id", libraryID.String()))
	if err != nil {
		return nil, wrap("listing versions", err)
	}

	versions := make([]*store.Version, 0, len(points))
	for _, point := range points {
		versions = append(versions, versionFromPayload(pointUUID(point), point.Payload))
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].VersionNormalized > versions[j].VersionNormalized
	})
	return versions, nil
}

// UpdateVersion rewrites a version point.
func (s *Store) UpdateVersion(ctx context.Context, v *store.Version) error {
	if _, err := s.getKind(ctx, v.ID, kindVersion, "updating version"); err != nil {
		return err
	}
	v.UpdatedAt = time.Now().UTC()
	if err := s.upsertMeta(ctx, v.ID, versionPayload(v)); err != nil {
		return wrap("updating version", err)
	}
	return nil
}

// DeleteVersion removes a version and its documents.
func (s *Store) DeleteVersion(ctx context.Context, id uuid.UUID) error {
	if _, err := s.getKind(ctx, id, kindVersion, "deleting version"); err != nil {
		return err
	}

	cascade := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("version_id", id.String())},
	}
	if err := s.deleteByFilter(ctx, cascade); err != nil {
		return wrap("deleting version documents", err)
	}
	if err := s.deletePoints(ctx, id); err != nil {
		return wrap("deleting version", err)
	}
	return nil
}

// CreateJob stores a new indexing job point in pending state.
func (s *Store) CreateJob(ctx context.Context, job *store.IndexingJob) error {
	if job.LibraryID == uuid.Nil || job.VersionID == uuid.Nil {
		return fmt.Errorf("%w: job requires library and version ids", store.ErrValidation)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = store.JobPending
	}
	if !job.Status.Valid() {
		return fmt.Errorf("%w: unknown job status %q", store.ErrValidation, job.Status)
	}
	if job.Metadata == nil {
		job.Metadata = map[string]string{}
	}

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if err := s.upsertMeta(ctx, job.ID, jobPayload(job)); err != nil {
		return wrap("creating job", err)
	}
	return nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*store.IndexingJob, error) {
	point, err := s.getKind(ctx, id, kindJob, "getting job")
	if err != nil {
		return nil, err
	}
	return jobFromPayload(id, point.Payload), nil
}

// UpdateJob rewrites a job's progress after checking the status transition
// is legal. Qdrant has no conditional upsert, so the check and the write are
// serialized under a process-local lock; a cancel from another process can
// still race the write.
func (s *Store) UpdateJob(ctx context.Context, job *store.IndexingJob) error {
	if !job.Status.Valid() {
		return fmt.Errorf("%w: unknown job status %q", store.ErrValidation, job.Status)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	current, err := s.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if current.Status != job.Status && !current.Status.CanTransitionTo(job.Status) {
		return fmt.Errorf("%w: job %s cannot move from %s to %s",
			store.ErrValidation, job.ID, current.Status, job.Status)
	}

	job.CreatedAt = current.CreatedAt
	job.UpdatedAt = time.Now().UTC()
	if err := s.upsertMeta(ctx, job.ID, jobPayload(job)); err != nil {
		return wrap("updating job", err)
	}
	return nil
}

// ListJobs returns a library's jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, libraryID uuid.UUID, limit int) ([]*store.IndexingJob, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	points, err := s.scrollKind(ctx, kindJob,
		qdrant.NewMatch("library_id", libraryID.String()))
	if err != nil {
		return nil, wrap("listing jobs", err)
	}

	jobs := make([]*store.IndexingJob, 0, len(points))
	for _, point := range points {
		jobs = append(jobs, jobFromPayload(pointUUID(point), point.Payload))
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}
