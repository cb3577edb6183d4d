package models

import (
	"sort"
	"time"
)

// RoleName enumerates the RBAC roles.
type RoleName string

const (
	RoleAdministrator   RoleName = "administrator"
	RoleSalesperson     RoleName = "salesperson"
	RoleWorkshopManager RoleName = "workshop_manager"
)

// User represents an authenticated account.
type User struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Username    string `gorm:"uniqueIndex"`
	Password    string
	DisplayName string   `gorm:"type:varchar(128)"`
	Role        RoleName `gorm:"type:varchar(32)"`
	Active      bool     `gorm:"default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Machine is a physical production machine with a fixed number of stations.
type Machine struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	Number          string `gorm:"uniqueIndex"`
	Name            string
	StationCapacity int  `gorm:"default:12"`
	Active          bool `gorm:"default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DefaultStationCapacity is the station count of a standard machine.
const DefaultStationCapacity = 12

// BatchStatus tracks a production batch through its approval lifecycle.
type BatchStatus string

const (
	BatchUnsubmitted BatchStatus = "unsubmitted"
	BatchPending     BatchStatus = "pending"
	BatchApproved    BatchStatus = "approved"
	BatchRejected    BatchStatus = "rejected"
)

// BatchMode distinguishes single and dual color production runs.
type BatchMode string

const (
	ModeSingleColor BatchMode = "single_color"
	ModeDualColor   BatchMode = "dual_color"
)

// Shift names a production shift window.
type Shift string

const (
	ShiftMorning Shift = "morning"
	ShiftEvening Shift = "evening"
)

// AllShifts lists shifts in scheduling order.
func AllShifts() []Shift {
	return []Shift{ShiftMorning, ShiftEvening}
}

// Valid reports whether the shift is a known value.
func (s Shift) Valid() bool {
	return s == ShiftMorning || s == ShiftEvening
}

// ProductionBatch is a planned production run on one machine.
//
// A batch is either shift-aware (TargetDate and Shift both set) or
// unscheduled (both nil). Code must go through Scheduling/SetScheduling so
// the pair can never be half set.
type ProductionBatch struct {
	ID          string      `gorm:"type:uuid;primaryKey"`
	BatchNumber string      `gorm:"uniqueIndex"`
	MachineID   string      `gorm:"type:uuid;index:idx_batches_machine"`
	Mode        BatchMode   `gorm:"type:varchar(16)"`
	Status      BatchStatus `gorm:"type:varchar(16);index:idx_batches_status"`

	TargetDate *time.Time `gorm:"index:idx_batches_target"`
	Shift      *Shift     `gorm:"type:varchar(16)"`

	Products []ProductConfig `gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`

	SubmittedBy *string `gorm:"type:uuid"`
	SubmittedAt *time.Time

	ApprovedBy *string `gorm:"type:uuid"`
	ApprovedAt *time.Time

	RejectedBy      *string `gorm:"type:uuid"`
	RejectedAt      *time.Time
	RejectionReason string `gorm:"type:text"`

	ReviewNotes string `gorm:"type:text"`

	AppliedAt   *time.Time
	CompletedAt *time.Time

	CreatedBy string `gorm:"type:uuid"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (ProductionBatch) TableName() string {
	return "production_batches"
}

// SlotIndexName is the partial unique index over (machine_id, target_date,
// shift) for pending and approved batches. Migrations create it where the
// backend supports partial indexes; the submit path reports violations as
// machine conflicts.
const SlotIndexName = "idx_production_batches_slot"

// SchedulingKind tags the scheduling variant of a batch.
type SchedulingKind string

const (
	SchedulingShiftAware  SchedulingKind = "shift_aware"
	SchedulingUnscheduled SchedulingKind = "unscheduled"
)

// Scheduling is the tagged scheduling variant: a batch targets a concrete
// (date, shift) pair or nothing at all. The zero value is Unscheduled.
type Scheduling struct {
	Kind       SchedulingKind
	TargetDate time.Time
	Shift      Shift
}

// ShiftAware builds a shift-aware scheduling value. The date is truncated
// to midnight so (machine, date, shift) comparisons are stable.
func ShiftAware(targetDate time.Time, shift Shift) Scheduling {
	y, m, d := targetDate.Date()
	return Scheduling{
		Kind:       SchedulingShiftAware,
		TargetDate: time.Date(y, m, d, 0, 0, 0, 0, targetDate.Location()),
		Shift:      shift,
	}
}

// Unscheduled builds the scheduling value of a legacy production-config batch.
func Unscheduled() Scheduling {
	return Scheduling{Kind: SchedulingUnscheduled}
}

// IsShiftAware reports whether the value carries a (date, shift) pair.
func (s Scheduling) IsShiftAware() bool {
	return s.Kind == SchedulingShiftAware
}

// Scheduling returns the batch's scheduling variant. A half-set column pair
// (possible only through writes bypassing SetScheduling) is reported as
// unscheduled so callers never observe partial state.
func (b *ProductionBatch) Scheduling() Scheduling {
	if b.TargetDate == nil || b.Shift == nil {
		return Unscheduled()
	}
	return ShiftAware(*b.TargetDate, *b.Shift)
}

// SetScheduling writes the column pair from the tagged variant.
func (b *ProductionBatch) SetScheduling(s Scheduling) {
	if !s.IsShiftAware() {
		b.TargetDate = nil
		b.Shift = nil
		return
	}
	date := s.TargetDate
	shift := s.Shift
	b.TargetDate = &date
	b.Shift = &shift
}

// IsTerminal reports whether the batch has left the review pipeline.
func (b *ProductionBatch) IsTerminal() bool {
	return b.Status == BatchApproved || b.Status == BatchRejected
}

// OccupiedStations returns the union of station numbers claimed by the
// batch's products, ascending and deduplicated.
func (b *ProductionBatch) OccupiedStations() []int {
	seen := map[int]bool{}
	var stations []int
	for _, p := range b.Products {
		for _, st := range p.Stations {
			if !seen[st] {
				seen[st] = true
				stations = append(stations, st)
			}
		}
	}
	sort.Ints(stations)
	return stations
}

// ProductConfig is one product's slice of a batch. The batch owns its
// products; deleting the batch cascades here.
type ProductConfig struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	BatchID        string `gorm:"type:uuid;index"`
	Name           string `gorm:"type:varchar(128)"`
	PrimaryColor   string `gorm:"type:varchar(64)"`
	SecondaryColor string `gorm:"type:varchar(64)"`
	Stations       IntList `gorm:"type:jsonb;serializer:json"`
	DualColor      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the table name for GORM.
func (ProductConfig) TableName() string {
	return "product_configs"
}

// IntList is a JSON-serialized station number list.
type IntList []int

// BatchApprovalSummary enriches the approval audit record. It is computed at
// approval time and never stored on the batch itself.
type BatchApprovalSummary struct {
	EstimatedHours  float64  `json:"estimated_hours"`
	Priority        string   `json:"priority"`
	RiskFactors     []string `json:"risk_factors,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}
