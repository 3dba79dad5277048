/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract:
  decimals are serialized as JSON numbers, timestamps as RFC3339
  strings, and internal-only fields never leak.

ENVELOPE:
  Success:  {"data": ...}
  Lists:    {"data": [...], "total": n, "page": p, "pageSize": s,
             "totalPages": t}
  Errors:   {"error": {"code": "...", "message": "..."}}

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ../settlement/types.go: Domain model these project from
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/starworks/settlement-engine/settlement"
)

// Amounts serialize as JSON numbers, not quoted strings.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// =============================================================================
// RESPONSE ENVELOPES
// =============================================================================

// DataResponse wraps every successful single-object response.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse wraps paginated list responses.
type ListResponse struct {
	Data       any `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// ErrorBody is the error payload inside the error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope for all error responses.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// =============================================================================
// SETTLEMENT DTOS
// =============================================================================

// SettlementDTO represents a settlement in API responses.
type SettlementDTO struct {
	ID          string              `json:"id"`
	StarID      string              `json:"starId"`
	StarName    string              `json:"starName,omitempty"`
	GradeName   string              `json:"gradeName,omitempty"`
	Year        int                 `json:"year"`
	Month       int                 `json:"month"`
	TotalAmount decimal.Decimal     `json:"totalAmount"`
	Status      string              `json:"status"`
	PaymentDate *string             `json:"paymentDate,omitempty"`
	Note        string              `json:"note,omitempty"`
	Items       []SettlementItemDTO `json:"items,omitempty"`
	CreatedAt   string              `json:"createdAt,omitempty"`
	UpdatedAt   string              `json:"updatedAt,omitempty"`
}

// SettlementItemDTO represents one line item.
type SettlementItemDTO struct {
	ID             string           `json:"id"`
	SettlementID   string           `json:"settlementId"`
	ItemType       string           `json:"itemType"`
	BaseAmount     decimal.Decimal  `json:"baseAmount"`
	AdjustedAmount *decimal.Decimal `json:"adjustedAmount,omitempty"`
	FinalAmount    decimal.Decimal  `json:"finalAmount"`
	Description    string           `json:"description,omitempty"`
	SubmissionID   *string          `json:"submissionId,omitempty"`
}

// GenerateRequest is the request to run settlement generation.
type GenerateRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// GenerateResultDTO is the outcome of a generation run.
type GenerateResultDTO struct {
	Year        int             `json:"year"`
	Month       int             `json:"month"`
	Settlements []SettlementDTO `json:"settlements"`
	Warnings    WarningsDTO     `json:"warnings"`
}

// WarningsDTO aggregates per-creator generation warnings.
type WarningsDTO struct {
	Skipped   []SkippedStarDTO `json:"skippedStars"`
	Completed []StarRefDTO     `json:"completedStars"`
	Failed    []FailedStarDTO  `json:"failedStars"`
}

// SkippedStarDTO is a creator excluded from a generation cycle.
type SkippedStarDTO struct {
	StarID   string `json:"starId"`
	StarName string `json:"starName"`
	Reason   string `json:"reason"`
}

// StarRefDTO identifies a creator in a warnings list.
type StarRefDTO struct {
	StarID   string `json:"starId"`
	StarName string `json:"starName"`
}

// FailedStarDTO is a creator whose settlement write failed.
type FailedStarDTO struct {
	StarID   string `json:"starId"`
	StarName string `json:"starName"`
	Error    string `json:"error"`
}

// UpdateNoteRequest sets the admin note on a settlement.
type UpdateNoteRequest struct {
	Note string `json:"note"`
}

// UpdateItemAmountRequest sets or clears a manual item override.
// A null adjustedAmount clears the override.
type UpdateItemAmountRequest struct {
	AdjustedAmount *decimal.Decimal `json:"adjustedAmount"`
}

// SetVideoRateRequest sets or clears a video-level rate override.
type SetVideoRateRequest struct {
	CustomRate *decimal.Decimal `json:"customRate"`
}

// =============================================================================
// STAR / GRADE / VIDEO DTOS
// =============================================================================

// StarDTO represents a creator in API responses.
type StarDTO struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Email     string           `json:"email,omitempty"`
	GradeID   *string          `json:"gradeId,omitempty"`
	GradeName string           `json:"gradeName,omitempty"`
	BaseRate  *decimal.Decimal `json:"baseRate,omitempty"`
	CreatedAt string           `json:"createdAt,omitempty"`
}

// GradeDTO represents a payout tier.
type GradeDTO struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	BaseRate  decimal.Decimal `json:"baseRate"`
	Color     string          `json:"color,omitempty"`
	SortOrder int             `json:"sortOrder"`
}

// VideoDTO represents a video.
type VideoDTO struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	OwnerID    string           `json:"ownerId"`
	Category   string           `json:"category,omitempty"`
	Status     string           `json:"status,omitempty"`
	CustomRate *decimal.Decimal `json:"customRate,omitempty"`
}

// SettingDTO represents a system setting row.
type SettingDTO struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Label     string `json:"label,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// UpdateSettingsRequest is a batch of key/value updates.
type UpdateSettingsRequest struct {
	Settings map[string]string `json:"settings"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId"`
}

// =============================================================================
// DOMAIN -> DTO PROJECTIONS
// =============================================================================

func toSettlementDTO(s settlement.Settlement) SettlementDTO {
	dto := SettlementDTO{
		ID:          s.ID,
		StarID:      s.StarID,
		Year:        s.Year,
		Month:       s.Month,
		TotalAmount: s.TotalAmount,
		Status:      string(s.Status),
		Note:        s.Note,
		CreatedAt:   formatTime(s.CreatedAt),
		UpdatedAt:   formatTime(s.UpdatedAt),
	}
	if s.Star != nil {
		dto.StarName = s.Star.Name
		if s.Star.Grade != nil {
			dto.GradeName = s.Star.Grade.Name
		}
	}
	if s.PaymentDate != nil {
		pd := formatTime(*s.PaymentDate)
		dto.PaymentDate = &pd
	}
	for _, item := range s.Items {
		dto.Items = append(dto.Items, toItemDTO(item))
	}
	return dto
}

func toSettlementDTOs(settlements []settlement.Settlement) []SettlementDTO {
	dtos := make([]SettlementDTO, 0, len(settlements))
	for _, s := range settlements {
		dtos = append(dtos, toSettlementDTO(s))
	}
	return dtos
}

func toItemDTO(i settlement.SettlementItem) SettlementItemDTO {
	return SettlementItemDTO{
		ID:             i.ID,
		SettlementID:   i.SettlementID,
		ItemType:       string(i.ItemType),
		BaseAmount:     i.BaseAmount,
		AdjustedAmount: i.AdjustedAmount,
		FinalAmount:    i.FinalAmount(),
		Description:    i.Description,
		SubmissionID:   i.SubmissionID,
	}
}

func toStarDTO(s settlement.Star) StarDTO {
	dto := StarDTO{
		ID:        s.ID,
		Name:      s.Name,
		Email:     s.Email,
		GradeID:   s.GradeID,
		BaseRate:  s.BaseRate,
		CreatedAt: formatTime(s.CreatedAt),
	}
	if s.Grade != nil {
		dto.GradeName = s.Grade.Name
	}
	return dto
}

func toVideoDTO(v settlement.Video) VideoDTO {
	return VideoDTO{
		ID:         v.ID,
		Title:      v.Title,
		OwnerID:    v.OwnerID,
		Category:   v.Category,
		Status:     v.Status,
		CustomRate: v.CustomRate,
	}
}

func toSettingDTO(s settlement.SystemSetting) SettingDTO {
	return SettingDTO{
		Key:       s.Key,
		Value:     s.Value,
		Label:     s.Label,
		UpdatedAt: formatTime(s.UpdatedAt),
	}
}

func toGenerateResultDTO(r *settlement.Result) GenerateResultDTO {
	dto := GenerateResultDTO{
		Year:        r.Year,
		Month:       r.Month,
		Settlements: toSettlementDTOs(r.Settlements),
		Warnings: WarningsDTO{
			Skipped:   []SkippedStarDTO{},
			Completed: []StarRefDTO{},
			Failed:    []FailedStarDTO{},
		},
	}
	for _, s := range r.Warnings.Skipped {
		dto.Warnings.Skipped = append(dto.Warnings.Skipped,
			SkippedStarDTO{StarID: s.StarID, StarName: s.StarName, Reason: s.Reason})
	}
	for _, c := range r.Warnings.Completed {
		dto.Warnings.Completed = append(dto.Warnings.Completed,
			StarRefDTO{StarID: c.StarID, StarName: c.StarName})
	}
	for _, f := range r.Warnings.Failed {
		dto.Warnings.Failed = append(dto.Warnings.Failed,
			FailedStarDTO{StarID: f.StarID, StarName: f.StarName, Error: f.Error})
	}
	return dto
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
