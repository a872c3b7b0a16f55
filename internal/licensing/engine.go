package licensing

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/pkg/logger"
	"github.com/keyforge/keyforge/pkg/metrics"
)

var (
	ErrPlanRequired           = errors.New("plan does not allow this action")
	ErrInvalidRequest         = errors.New("projectId and collectionId are required")
	ErrProjectNotFound        = errors.New("project not found")
	ErrAccessDenied           = errors.New("access denied")
	ErrCollectionNotLinked    = errors.New("collection is not linked to this project")
	ErrIntegrationUnavailable = errors.New("integration disconnected or missing")
	ErrDocumentNotFound       = errors.New("document not found")
	ErrGenerationFailed       = errors.New("key generation produced no unique keys")
)

const isoMillis = "2006-01-02T15:04:05.000Z"

// ProjectStore is the slice of project persistence the engine needs.
type ProjectStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Project, error)
	ListByClientEmail(ctx context.Context, email string) ([]models.Project, error)
	ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Project, error)
}

// UserStore resolves project owners.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// LinkStore is the slice of collection-link persistence the engine needs.
type LinkStore interface {
	Get(ctx context.Context, userID, projectID primitive.ObjectID, collectionID string) (*models.CollectionLink, error)
	ListByUserProject(ctx context.Context, userID, projectID primitive.ObjectID) ([]models.CollectionLink, error)
	ListByUserCollections(ctx context.Context, userID primitive.ObjectID, collectionIDs []string) ([]models.CollectionLink, error)
	ListByProjects(ctx context.Context, projectIDs []primitive.ObjectID) ([]models.CollectionLink, error)
}

// Engine drives every operation against external license databases:
// discovery, listing, issuance and per-key mutations. All authorization runs
// through the project owner's integrations; clients never store URIs of
// their own.
type Engine struct {
	projects  ProjectStore
	users     UserStore
	links     LinkStore
	connector Connector
}

func NewEngine(projects ProjectStore, users UserStore, links LinkStore, connector Connector) *Engine {
	return &Engine{projects: projects, users: users, links: links, connector: connector}
}

// CollectionRow is a discovered license collection as shown in the UI.
type CollectionRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	ProjectID   string `json:"projectId"`
	ProjectName string `json:"projectName"`
	KeysTotal   int64  `json:"keysTotal"`
	UpdatedAt   string `json:"updatedAt"`
	Database    string `json:"database"`
}

// KeyRow is one license key as shown in the UI.
type KeyRow struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	HWID      string `json:"hwid"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updatedAt"`
}

// ListCollections discovers license collections visible to the user.
// Empresarial users scan every connected integration; clients see only
// collections linked to projects they are linked into, dialed through the
// owner's integrations. Integration failures are logged and skipped.
func (e *Engine) ListCollections(ctx context.Context, user *models.User) ([]CollectionRow, error) {
	if user.Role() == models.RoleEmpresarial {
		return e.ownerCollections(ctx, user)
	}
	return e.clientCollections(ctx, user)
}

func (e *Engine) ownerCollections(ctx context.Context, user *models.User) ([]CollectionRow, error) {
	rows := []CollectionRow{}
	for i := range user.Integrations {
		integration := &user.Integrations[i]
		if !integration.Usable() {
			continue
		}
		found, err := e.scanIntegration(ctx, integration)
		if err != nil {
			logger.Warnf("scan integration %s: %v", integration.ID, err)
			metrics.IntegrationErrors.WithLabelValues("scan").Inc()
			continue
		}
		rows = append(rows, found...)
	}

	// Annotate with the caller's project links.
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	links, err := e.links.ListByUserCollections(ctx, user.ID, ids)
	if err != nil {
		return nil, err
	}
	linkMap := make(map[string]primitive.ObjectID, len(links))
	projectIDs := make([]primitive.ObjectID, 0, len(links))
	for _, l := range links {
		linkMap[l.CollectionID] = l.ProjectID
		projectIDs = append(projectIDs, l.ProjectID)
	}
	projects, err := e.projects.ListByIDs(ctx, projectIDs)
	if err != nil {
		return nil, err
	}
	names := make(map[primitive.ObjectID]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	for i := range rows {
		if pid, ok := linkMap[rows[i].ID]; ok {
			rows[i].ProjectID = pid.Hex()
			rows[i].ProjectName = names[pid]
		}
	}
	return rows, nil
}

// scanIntegration walks every database and collection of one integration and
// returns the collections that look like license stores.
func (e *Engine) scanIntegration(ctx context.Context, integration *models.Integration) ([]CollectionRow, error) {
	conn, err := e.connector.Connect(ctx, integration.Config.URI)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	dbs, err := conn.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	var rows []CollectionRow
	for _, db := range dbs {
		colls, err := conn.ListCollections(ctx, db)
		if err != nil {
			return nil, err
		}
		for _, coll := range colls {
			ok, err := conn.ProbeLicenseCollection(ctx, db, coll)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			total, err := conn.CountDocuments(ctx, db, coll)
			if err != nil {
				return nil, err
			}
			ref := CollectionRef{IntegrationID: integration.ID, Database: db, Collection: coll}
			rows = append(rows, CollectionRow{
				ID:        ref.String(),
				Name:      coll,
				Status:    "active",
				KeysTotal: total,
				UpdatedAt: time.Now().UTC().Format(isoMillis),
				Database:  db,
			})
		}
	}
	return rows, nil
}

func (e *Engine) clientCollections(ctx context.Context, user *models.User) ([]CollectionRow, error) {
	projects, err := e.projects.ListByClientEmail(ctx, models.NormalizeEmail(user.Email))
	if err != nil {
		return nil, err
	}
	rows := []CollectionRow{}
	for i := range projects {
		project := &projects[i]
		owner, err := e.users.GetByID(ctx, project.Owner)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			continue
		}
		links, err := e.links.ListByUserProject(ctx, owner.ID, project.ID)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			ref, err := ParseCollectionRef(link.CollectionID)
			if err != nil {
				continue
			}
			integration := owner.Integration(ref.IntegrationID)
			if !integration.Usable() {
				continue
			}
			row, err := e.inspectLinkedCollection(ctx, integration, ref)
			if err != nil {
				logger.Warnf("inspect collection %s for project %s: %v", link.CollectionID, project.ID.Hex(), err)
				metrics.IntegrationErrors.WithLabelValues("inspect").Inc()
				continue
			}
			if row == nil {
				continue
			}
			row.ProjectID = project.ID.Hex()
			row.ProjectName = project.Name
			rows = append(rows, *row)
		}
	}
	return rows, nil
}

func (e *Engine) inspectLinkedCollection(ctx context.Context, integration *models.Integration, ref CollectionRef) (*CollectionRow, error) {
	conn, err := e.connector.Connect(ctx, integration.Config.URI)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	ok, err := conn.ProbeLicenseCollection(ctx, ref.Database, ref.Collection)
	if err != nil || !ok {
		return nil, err
	}
	total, err := conn.CountDocuments(ctx, ref.Database, ref.Collection)
	if err != nil {
		return nil, err
	}
	return &CollectionRow{
		ID:        ref.String(),
		Name:      ref.Collection,
		Status:    "active",
		KeysTotal: total,
		UpdatedAt: time.Now().UTC().Format(isoMillis),
		Database:  ref.Database,
	}, nil
}

// ListKeys returns every license key visible to the user. Only documents
// carrying a key field are surfaced; hwid falls back to the legacy code
// field, and the update time falls back to the ObjectID timestamp.
func (e *Engine) ListKeys(ctx context.Context, user *models.User) ([]KeyRow, error) {
	if user.Role() == models.RoleEmpresarial {
		return e.ownerKeys(ctx, user)
	}
	return e.clientKeys(ctx, user)
}

func keyRow(id string, doc LicenseDoc, now time.Time) (KeyRow, bool) {
	if doc.Key == "" {
		return KeyRow{}, false
	}
	hwid := doc.HWID
	if hwid == "" {
		hwid = doc.Code
	}
	status := "active"
	if doc.ExpireAt != nil && doc.ExpireAt.Before(now) {
		status = "expired"
	}
	updated := doc.ID.Timestamp()
	if doc.UpdatedAt != nil {
		updated = *doc.UpdatedAt
	}
	return KeyRow{
		ID:        id,
		Key:       doc.Key,
		HWID:      hwid,
		Status:    status,
		UpdatedAt: updated.UTC().Format(isoMillis),
	}, true
}

func (e *Engine) ownerKeys(ctx context.Context, user *models.User) ([]KeyRow, error) {
	rows := []KeyRow{}
	now := time.Now()
	for i := range user.Integrations {
		integration := &user.Integrations[i]
		if !integration.Usable() {
			continue
		}
		found, err := e.scanIntegrationKeys(ctx, integration, now)
		if err != nil {
			logger.Warnf("scan keys in integration %s: %v", integration.ID, err)
			metrics.IntegrationErrors.WithLabelValues("scan").Inc()
			continue
		}
		rows = append(rows, found...)
	}
	return rows, nil
}

func (e *Engine) scanIntegrationKeys(ctx context.Context, integration *models.Integration, now time.Time) ([]KeyRow, error) {
	conn, err := e.connector.Connect(ctx, integration.Config.URI)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	dbs, err := conn.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	var rows []KeyRow
	for _, db := range dbs {
		colls, err := conn.ListCollections(ctx, db)
		if err != nil {
			return nil, err
		}
		for _, coll := range colls {
			ok, err := conn.ProbeLicenseCollection(ctx, db, coll)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			docs, err := conn.FindLicenseDocs(ctx, db, coll)
			if err != nil {
				return nil, err
			}
			collRef := CollectionRef{IntegrationID: integration.ID, Database: db, Collection: coll}
			for _, doc := range docs {
				ref := KeyRef{CollectionRef: collRef, DocID: doc.ID.Hex()}
				if row, ok := keyRow(ref.String(), doc, now); ok {
					rows = append(rows, row)
				}
			}
		}
	}
	return rows, nil
}

func (e *Engine) clientKeys(ctx context.Context, user *models.User) ([]KeyRow, error) {
	projects, err := e.projects.ListByClientEmail(ctx, models.NormalizeEmail(user.Email))
	if err != nil {
		return nil, err
	}
	rows := []KeyRow{}
	now := time.Now()
	for i := range projects {
		project := &projects[i]
		owner, err := e.users.GetByID(ctx, project.Owner)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			continue
		}
		links, err := e.links.ListByUserProject(ctx, owner.ID, project.ID)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			ref, err := ParseCollectionRef(link.CollectionID)
			if err != nil {
				continue
			}
			integration := owner.Integration(ref.IntegrationID)
			if !integration.Usable() {
				continue
			}
			docs, err := e.readLinkedDocs(ctx, integration, ref)
			if err != nil {
				logger.Warnf("read keys in collection %s for project %s: %v", link.CollectionID, project.ID.Hex(), err)
				metrics.IntegrationErrors.WithLabelValues("read").Inc()
				continue
			}
			for _, doc := range docs {
				if row, ok := keyRow(link.CollectionID+"-"+doc.ID.Hex(), doc, now); ok {
					rows = append(rows, row)
				}
			}
		}
	}
	return rows, nil
}

func (e *Engine) readLinkedDocs(ctx context.Context, integration *models.Integration, ref CollectionRef) ([]LicenseDoc, error) {
	conn, err := e.connector.Connect(ctx, integration.Config.URI)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)
	return conn.FindLicenseDocs(ctx, ref.Database, ref.Collection)
}

// GenerateResult reports what a generation batch wrote.
type GenerateResult struct {
	Role           string     `json:"role"`
	Inserted       int        `json:"inserted"`
	Sample         []string   `json:"sample"`
	ProjectID      string     `json:"projectId"`
	CollectionID   string     `json:"collectionId"`
	Database       string     `json:"dbName"`
	Collection     string     `json:"collName"`
	ExpirationDays int        `json:"expirationDays"`
	ExpireAt       *time.Time `json:"expireAt"`
}

// Generate issues a batch of keys into a linked collection. Quantity,
// expiration and length are clamped, duplicates within the batch are dropped
// before the unordered insert, and at most 30 keys are echoed back.
func (e *Engine) Generate(ctx context.Context, user *models.User, params GenerateParams) (*GenerateResult, error) {
	if user.Plan == "" || user.Plan == models.PlanNone {
		return nil, ErrPlanRequired
	}
	if params.ProjectID == "" || params.CollectionID == "" {
		return nil, ErrInvalidRequest
	}

	project, owner, err := e.resolveProjectOwner(ctx, user, params.ProjectID)
	if err != nil {
		return nil, err
	}

	link, err := e.links.Get(ctx, owner.ID, project.ID, params.CollectionID)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, ErrCollectionNotLinked
	}

	ref, err := ParseCollectionRef(params.CollectionID)
	if err != nil {
		return nil, err
	}
	integration := owner.Integration(ref.IntegrationID)
	if !integration.Usable() {
		return nil, ErrIntegrationUnavailable
	}

	spec := params.normalize()
	now := time.Now().UTC()
	expireAt := spec.expireAt(now)

	docs := make([]KeyDoc, 0, spec.quantity)
	seen := make(map[string]struct{}, spec.quantity)
	for i := 0; i < spec.quantity; i++ {
		key, err := spec.buildKey()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		docs = append(docs, KeyDoc{
			Key:            key,
			HWID:           "",
			Status:         "active",
			CreatedAt:      now,
			UpdatedAt:      now,
			ExpirationDays: spec.expirationDays,
			ExpireAt:       expireAt,
		})
	}
	if len(docs) == 0 {
		return nil, ErrGenerationFailed
	}

	conn, err := e.connector.Connect(ctx, integration.Config.URI)
	if err != nil {
		return nil, ErrIntegrationUnavailable
	}
	defer conn.Close(ctx)

	inserted, err := conn.InsertKeys(ctx, ref.Database, ref.Collection, docs)
	if err != nil && inserted == 0 {
		return nil, err
	}
	metrics.KeysGenerated.Add(float64(inserted))

	sample := make([]string, 0, 30)
	for _, d := range docs {
		if len(sample) == 30 {
			break
		}
		sample = append(sample, d.Key)
	}
	return &GenerateResult{
		Role:           string(user.Role()),
		Inserted:       inserted,
		Sample:         sample,
		ProjectID:      project.ID.Hex(),
		CollectionID:   params.CollectionID,
		Database:       ref.Database,
		Collection:     ref.Collection,
		ExpirationDays: spec.expirationDays,
		ExpireAt:       expireAt,
	}, nil
}

// resolveProjectOwner loads the project and the account whose integrations
// will be dialed. Empresarial callers must own the project; clients must be
// linked into it, and the owner is loaded separately.
func (e *Engine) resolveProjectOwner(ctx context.Context, user *models.User, projectID string) (*models.Project, *models.User, error) {
	oid, err := primitive.ObjectIDFromHex(projectID)
	if err != nil {
		return nil, nil, ErrProjectNotFound
	}
	project, err := e.projects.GetByID(ctx, oid)
	if err != nil {
		return nil, nil, err
	}
	if project == nil {
		return nil, nil, ErrProjectNotFound
	}

	if user.Role() == models.RoleEmpresarial {
		if project.Owner != user.ID {
			return nil, nil, ErrProjectNotFound
		}
		return project, user, nil
	}

	if !project.HasLinkedClient(models.NormalizeEmail(user.Email)) {
		return nil, nil, ErrAccessDenied
	}
	owner, err := e.users.GetByID(ctx, project.Owner)
	if err != nil {
		return nil, nil, err
	}
	if owner == nil {
		return nil, nil, ErrProjectNotFound
	}
	return project, owner, nil
}

// ResetHWID clears the hardware binding of one key.
func (e *Engine) ResetHWID(ctx context.Context, user *models.User, keyID string) error {
	return e.mutateKey(ctx, user, keyID, func(ctx context.Context, conn Conn, ref KeyRef, docID primitive.ObjectID) (bool, error) {
		return conn.ResetHWID(ctx, ref.Database, ref.Collection, docID)
	})
}

// RemoveKey deletes one key document.
func (e *Engine) RemoveKey(ctx context.Context, user *models.User, keyID string) error {
	return e.mutateKey(ctx, user, keyID, func(ctx context.Context, conn Conn, ref KeyRef, docID primitive.ObjectID) (bool, error) {
		return conn.DeleteKey(ctx, ref.Database, ref.Collection, docID)
	})
}

type keyMutation func(ctx context.Context, conn Conn, ref KeyRef, docID primitive.ObjectID) (bool, error)

// mutateKey resolves a key id to an owner integration, applies op and maps a
// miss to ErrDocumentNotFound. Empresarial ids carry the collection inline;
// client ids are resolved through the caller's linked projects.
func (e *Engine) mutateKey(ctx context.Context, user *models.User, keyID string, op keyMutation) error {
	if user.Plan == "" || user.Plan == models.PlanNone {
		return ErrPlanRequired
	}

	var (
		ref   KeyRef
		owner *models.User
		err   error
	)
	if user.Role() == models.RoleEmpresarial {
		ref, err = ParseOwnerKeyRef(keyID)
		if err != nil {
			return err
		}
		owner = user
		if !owner.Integration(ref.IntegrationID).Usable() {
			return ErrIntegrationUnavailable
		}
	} else {
		ref, err = ParseClientKeyRef(keyID)
		if err != nil {
			return err
		}
		owner, err = e.resolveClientKeyOwner(ctx, user, ref)
		if err != nil {
			return err
		}
	}

	docID, err := primitive.ObjectIDFromHex(ref.DocID)
	if err != nil {
		return ErrMalformedRef
	}

	integration := owner.Integration(ref.IntegrationID)
	conn, err := e.connector.Connect(ctx, integration.Config.URI)
	if err != nil {
		return ErrIntegrationUnavailable
	}
	defer conn.Close(ctx)

	matched, err := op(ctx, conn, ref, docID)
	if err != nil {
		return err
	}
	if !matched {
		return ErrDocumentNotFound
	}
	return nil
}

// resolveClientKeyOwner finds the first linked project whose owner holds a
// usable integration and a link for the key's collection.
func (e *Engine) resolveClientKeyOwner(ctx context.Context, user *models.User, ref KeyRef) (*models.User, error) {
	projects, err := e.projects.ListByClientEmail(ctx, models.NormalizeEmail(user.Email))
	if err != nil {
		return nil, err
	}
	collectionID := ref.CollectionRef.String()
	for i := range projects {
		project := &projects[i]
		owner, err := e.users.GetByID(ctx, project.Owner)
		if err != nil {
			return nil, err
		}
		if owner == nil || !owner.Integration(ref.IntegrationID).Usable() {
			continue
		}
		links, err := e.links.ListByUserProject(ctx, owner.ID, project.ID)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			if link.CollectionID == collectionID {
				return owner, nil
			}
		}
	}
	return nil, ErrAccessDenied
}

// CountProjectKeys sums live documents across every collection linked to the
// project, dialed through the given user's integrations. Dead integrations
// and malformed ids contribute zero.
func (e *Engine) CountProjectKeys(ctx context.Context, user *models.User, projectID primitive.ObjectID) (int64, error) {
	links, err := e.links.ListByProjects(ctx, []primitive.ObjectID{projectID})
	if err != nil {
		return 0, err
	}
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.CollectionID
	}
	return e.SumCollectionKeys(ctx, user, ids), nil
}

// SumCollectionKeys counts documents across license collections reachable
// through the user's integrations. Each collection gets its own transient
// connection; failures are logged and skipped.
func (e *Engine) SumCollectionKeys(ctx context.Context, user *models.User, collectionIDs []string) int64 {
	var total int64
	for _, id := range collectionIDs {
		ref, err := ParseCollectionRef(id)
		if err != nil {
			continue
		}
		integration := user.Integration(ref.IntegrationID)
		if !integration.Usable() {
			continue
		}
		n, err := e.countLicenseDocs(ctx, integration, ref)
		if err != nil {
			logger.Warnf("count keys in collection %s: %v", id, err)
			metrics.IntegrationErrors.WithLabelValues("count").Inc()
			continue
		}
		total += n
	}
	return total
}

func (e *Engine) countLicenseDocs(ctx context.Context, integration *models.Integration, ref CollectionRef) (int64, error) {
	conn, err := e.connector.Connect(ctx, integration.Config.URI)
	if err != nil {
		return 0, err
	}
	defer conn.Close(ctx)

	ok, err := conn.ProbeLicenseCollection(ctx, ref.Database, ref.Collection)
	if err != nil || !ok {
		return 0, err
	}
	return conn.CountDocuments(ctx, ref.Database, ref.Collection)
}
