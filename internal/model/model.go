package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&MapLoad{},
	&PerformanceSample{},
}

// Session is one load of the extension by the game server
type Session struct {
	ID               string    `json:"id" gorm:"size:36;primaryKey"`
	StartedAt        time.Time `json:"startedAt" gorm:"index:idx_session_started_at"`
	ExtensionVersion string    `json:"extensionVersion" gorm:"size:64"`
	MaxCharacters    uint16    `json:"maxCharacters"`
	TickRate         uint16    `json:"tickRate"`
}

func (*Session) TableName() string {
	return "sessions"
}

// MapLoad is one occluder set installed into the engine
type MapLoad struct {
	ID          string    `json:"id" gorm:"size:36;primaryKey"`
	SessionID   string    `json:"sessionId" gorm:"size:36;index:idx_maploads_session_id"`
	Session     Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time        time.Time `json:"time" gorm:"index:idx_maploads_time"`
	MapName     string    `json:"mapName" gorm:"size:127;index:idx_maploads_map_name"`
	Path        string    `json:"path" gorm:"size:255"`
	Generation  uint32    `json:"generation"`
	Placeholder bool      `json:"placeholder"`
	Cuboids     uint32    `json:"cuboids"`
	Spheres     uint32    `json:"spheres"`
	Skipped     uint32    `json:"skipped"`
	ParseTimeMs float32   `json:"parseTimeMs"`

	FootprintArea float64        `json:"footprintArea"`
	Extent        Extent         `json:"extent" gorm:"embedded;embeddedPrefix:extent_"`
	Footprint     datatypes.JSON `json:"footprint"`
}

func (*MapLoad) TableName() string {
	return "map_loads"
}

// Extent is the XY bounding rectangle of a map's occluders
type Extent struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// PerformanceSample is the model for culling engine performance metrics
type PerformanceSample struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID  string    `json:"sessionId" gorm:"size:36;index:idx_perfsamples_session_id"`
	Session    Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time       time.Time `json:"time" gorm:"index:idx_perfsamples_time"`
	MapName    string    `json:"mapName" gorm:"size:127"`
	Generation uint32    `json:"generation"`
	Ticks      int64     `json:"ticks"`
	Occluders  uint32    `json:"occluders"`

	RollingAverageUs float32 `json:"rollingAverageUs"`
	RollingMaxUs     float32 `json:"rollingMaxUs"`
	OverallAverageUs float32 `json:"overallAverageUs"`

	LastTick TickCounts `json:"lastTick" gorm:"embedded;embeddedPrefix:last_"`
}

func (*PerformanceSample) TableName() string {
	return "performance_samples"
}

// TickCounts is the model for the pass outcomes of one tick
type TickCounts struct {
	Bundles    uint16 `json:"bundles"`
	CacheHits  uint16 `json:"cacheHits"`
	SphereHits uint16 `json:"sphereHits"`
	IndexHits  uint16 `json:"indexHits"`
	Visible    uint16 `json:"visible"`
}
