// Package events defines the typed events exchanged inside one editing
// session and the scoped bus that carries them.
package events

import (
	"time"

	"golang.org/x/net/html"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
)

// Event names, also used as SSE event types.
const (
	NameEditorReady                  = "editor-ready"
	NameComponentDestroyed           = "component-destroyed"
	NameComponentRendered            = "component-rendered"
	NameCoordinateRenderRequest      = "coordinate-render-request"
	NameCoordinateRemoveRequest      = "coordinate-remove-request"
	NameCoordinateReorderRequest     = "coordinate-reorder-request"
	NameStateChanged                 = "state-changed"
	NameComponentRenderedCoordinated = "component-rendered-coordinated"
	NameComponentRemovedCoordinated  = "component-removed-coordinated"
	NameSyncComponentRegistered      = "sync:component-registered"
	NameSyncFieldSynced              = "sync:field-synced"
	NameNotice                       = "notice"
	NameBulkProgress                 = "bulk-progress"
	NameStateSaved                   = "state-saved"
)

// Event is implemented by every payload published on a Bus.
type Event interface {
	Name() string
}

// EditorReady announces that an editor panel for a component is mounted.
type EditorReady struct {
	ComponentID   string     `json:"componentId"`
	ComponentType string     `json:"componentType"`
	Container     *html.Node `json:"-"`
}

// ComponentDestroyed announces that a component's editor and nodes are going away.
type ComponentDestroyed struct {
	ComponentID string `json:"componentId"`
}

// ComponentRendered is raised by renderers that replaced a node on their own.
type ComponentRendered struct {
	ComponentID string `json:"componentId"`
}

type RenderOptions struct {
	SkipVerification bool `json:"skipVerification,omitempty"`
}

type CoordinateRenderRequest struct {
	ComponentID     string        `json:"componentId"`
	Element         *html.Node    `json:"-"`
	TargetContainer string        `json:"targetContainer"`
	Options         RenderOptions `json:"options"`
}

type CoordinateRemoveRequest struct {
	ComponentID string `json:"componentId"`
}

type CoordinateReorderRequest struct {
	Layout []string `json:"layout"`
}

// StateChanged carries the full new document after a notification.
type StateChanged struct {
	State *mediakit.State `json:"state"`
}

// Verification is the result of a uniqueness check for one component id.
type Verification struct {
	IsUnique      bool `json:"isUnique"`
	CountByID     int  `json:"countById"`
	CountByDataID int  `json:"countByDataId"`
}

type ComponentRenderedCoordinated struct {
	ComponentID     string       `json:"componentId"`
	Element         *html.Node   `json:"-"`
	TargetContainer string       `json:"targetContainer"`
	RenderTime      time.Time    `json:"renderTime"`
	Verification    Verification `json:"verification"`
}

type ComponentRemovedCoordinated struct {
	ComponentID string    `json:"componentId"`
	RemovedAt   time.Time `json:"removedAt"`
}

type SyncComponentRegistered struct {
	ComponentID string   `json:"componentId"`
	Fields      []string `json:"fields"`
}

// SyncDirection names the surface a sync writes to.
type SyncDirection string

const (
	ToPreview SyncDirection = "to-preview"
	ToEditor  SyncDirection = "to-editor"
)

type SyncFieldSynced struct {
	ComponentID string         `json:"componentId"`
	Field       string         `json:"field"`
	Value       mediakit.Value `json:"value"`
	Direction   SyncDirection  `json:"direction"`
}

// NoticeLevel mirrors toast severities.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient user-visible message.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// BulkProgress reports a staged bulk operation. Total of zero means indeterminate.
type BulkProgress struct {
	Operation string `json:"operation"`
	Stage     string `json:"stage"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
}

type StateSaved struct {
	KitID   string    `json:"kitId"`
	SavedAt time.Time `json:"savedAt"`
	Auto    bool      `json:"auto"`
}

func (EditorReady) Name() string                  { return NameEditorReady }
func (ComponentDestroyed) Name() string           { return NameComponentDestroyed }
func (ComponentRendered) Name() string            { return NameComponentRendered }
func (CoordinateRenderRequest) Name() string      { return NameCoordinateRenderRequest }
func (CoordinateRemoveRequest) Name() string      { return NameCoordinateRemoveRequest }
func (CoordinateReorderRequest) Name() string     { return NameCoordinateReorderRequest }
func (StateChanged) Name() string                 { return NameStateChanged }
func (ComponentRenderedCoordinated) Name() string { return NameComponentRenderedCoordinated }
func (ComponentRemovedCoordinated) Name() string  { return NameComponentRemovedCoordinated }
func (SyncComponentRegistered) Name() string      { return NameSyncComponentRegistered }
func (SyncFieldSynced) Name() string              { return NameSyncFieldSynced }
func (Notice) Name() string                       { return NameNotice }
func (BulkProgress) Name() string                 { return NameBulkProgress }
func (StateSaved) Name() string                   { return NameStateSaved }
