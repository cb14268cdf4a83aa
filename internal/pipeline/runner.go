// Package pipeline orchestrates one ETL run: bootstrap the warehouse
// credential, load the existing-id set, enumerate tenant artifacts, then
// crawl and batch-load every tenant on a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/driftline/mailvault/internal/auth"
	"github.com/driftline/mailvault/internal/drive"
	"github.com/driftline/mailvault/internal/events"
	"github.com/driftline/mailvault/internal/idcache"
	"github.com/driftline/mailvault/internal/warehouse"
	"github.com/driftline/mailvault/internal/workpool"
)

type runState string

const (
	stateResolvingExistingIDs runState = "resolving_existing_ids"
	stateListingTenants       runState = "listing_tenants"
	stateProcessingTenants    runState = "processing_tenants"
	stateAggregating          runState = "aggregating"
	stateDone                 runState = "done"
	stateFatal                runState = "fatal"
)

// Crawler walks one tenant's mailbox. Implemented by gmailx.Crawler.
type Crawler interface {
	Crawl(ctx context.Context, existing map[string]struct{}) ([]*warehouse.EmailRecord, error)
}

// Loader batch-loads records into the warehouse. Implemented by
// warehouse.Loader.
type Loader interface {
	Load(ctx context.Context, records []*warehouse.EmailRecord) int
}

// Deps are the warehouse-side collaborators produced by the bootstrap step.
type Deps struct {
	Loader        Loader
	FetchExisting idcache.FetchFunc
	ExistingQuery string // cache signature of the existing-id query
	Close         func() // optional, releases warehouse clients
}

// ResolveFunc turns a downloaded artifact into a usable credential.
type ResolveFunc func(ctx context.Context, path string) (*auth.Credential, error)

// CrawlerFactory builds a crawler for one resolved tenant credential.
type CrawlerFactory func(ctx context.Context, cred *auth.Credential) (Crawler, error)

// Runner executes runs. Fields are collaborators so tests can substitute every
// external surface.
type Runner struct {
	Bootstrap  func(ctx context.Context) (*Deps, error)
	Store      drive.Store
	Resolve    ResolveFunc
	NewCrawler CrawlerFactory
	Cache      *idcache.Cache
	Events     *events.Publisher // nil disables publishing
	Width      int               // outer worker pool width
}

type tenantTask struct {
	name string
	cred *auth.Credential
}

// Run executes one end-to-end run. The returned error is non-nil only when
// the warehouse credential bootstrap fails; every other failure is contained
// to its tenant and reported through the Result.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	logger := log.WithField("run_id", res.RunID)

	// Working directory for downloaded credential material. Removed on every
	// exit path, fatal included; removal failures are swallowed.
	workDir, err := os.MkdirTemp("", "mailvault-run-")
	if err != nil {
		logger.WithField("state", stateFatal).WithError(err).Error("run aborted")
		return res, fmt.Errorf("create working directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	deps, err := r.Bootstrap(ctx)
	if err != nil {
		logger.WithField("state", stateFatal).WithError(err).Error("run aborted")
		return res, fmt.Errorf("warehouse bootstrap: %w", err)
	}
	if deps.Close != nil {
		defer deps.Close()
	}

	logger.WithField("state", stateResolvingExistingIDs).Info("run state")
	existing := r.Cache.Get(ctx, deps.ExistingQuery, deps.FetchExisting)
	logger.WithField("existing_ids", len(existing)).Info("existing-id set loaded")

	logger.WithField("state", stateListingTenants).Info("run state")
	refs := r.Store.List(ctx)
	res.TenantsDiscovered = len(refs)
	if len(refs) == 0 {
		logger.WithField("state", stateDone).Info("no tenant artifacts found")
		return res, nil
	}

	tasks := r.resolveArtifacts(ctx, logger, refs, workDir)

	logger.WithFields(log.Fields{"state": stateProcessingTenants, "tenants": len(tasks)}).Info("run state")
	results := make([]TenantResult, len(tasks))
	workpool.Run(ctx, r.Width, len(tasks), func(i int) {
		results[i] = r.processTenant(ctx, tasks[i], existing, deps.Loader, res.RunID)
	})

	logger.WithField("state", stateAggregating).Info("run state")
	res.Tenants = results
	for _, tr := range results {
		res.TotalInserted += tr.Inserted
	}

	r.Events.RunCompleted(events.RunCompleted{
		RunID:         res.RunID,
		Tenants:       len(results),
		TotalInserted: res.TotalInserted,
	})

	logger.WithFields(log.Fields{"state": stateDone, "total_inserted": res.TotalInserted}).Info("run complete")
	return res, nil
}

// resolveArtifacts downloads each listed artifact and resolves it to a
// credential. Non-token and expired artifacts are logged and excluded; they
// are not run errors.
func (r *Runner) resolveArtifacts(ctx context.Context, logger *log.Entry, refs []drive.ArtifactRef, workDir string) []tenantTask {
	var tasks []tenantTask
	for _, ref := range refs {
		path, err := r.Store.Download(ctx, ref, workDir)
		if err != nil {
			logger.WithError(err).WithField("artifact", ref.Name).Error("downloading artifact failed")
			continue
		}

		cred, err := r.Resolve(ctx, path)
		switch {
		case errors.Is(err, auth.ErrNotAToken):
			logger.WithField("artifact", ref.Name).Warn("skipping non-token artifact")
		case errors.Is(err, auth.ErrExpiredToken):
			logger.WithField("artifact", ref.Name).Error("token expired with no refresh token")
		case err != nil:
			logger.WithError(err).WithField("artifact", ref.Name).Error("resolving credential failed")
		default:
			tasks = append(tasks, tenantTask{name: cred.Name, cred: cred})
		}
	}
	return tasks
}

// processTenant runs crawl+load for one tenant. All failure, panics included,
// stays inside this boundary.
func (r *Runner) processTenant(ctx context.Context, task tenantTask, existing map[string]struct{}, loader Loader, runID string) (tr TenantResult) {
	tr = TenantResult{Tenant: task.name}
	defer func() {
		if p := recover(); p != nil {
			tr.Err = fmt.Errorf("tenant task panic: %v", p)
			tr.Inserted = 0
			log.WithFields(log.Fields{"run_id": runID, "tenant": task.name}).Error(tr.Err)
		}
	}()

	crawler, err := r.NewCrawler(ctx, task.cred)
	if err != nil {
		tr.Err = err
		log.WithError(err).WithFields(log.Fields{"run_id": runID, "tenant": task.name}).Error("creating crawler failed")
		return tr
	}

	records, err := crawler.Crawl(ctx, existing)
	if err != nil {
		tr.Err = err
		log.WithError(err).WithFields(log.Fields{"run_id": runID, "tenant": task.name}).Error("mailbox crawl failed")
		return tr
	}

	tr.Inserted = loader.Load(ctx, records)

	r.Events.TenantLoaded(events.TenantLoaded{
		RunID:    runID,
		Tenant:   task.name,
		Inserted: tr.Inserted,
	})
	return tr
}
