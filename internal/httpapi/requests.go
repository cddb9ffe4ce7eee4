package httpapi

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
)

const maxIDLength = 128

var (
	validRoles    = roleNames()
	validStatuses = []any{
		string(domain.StatusPending),
		string(domain.StatusApproved),
		string(domain.StatusRejected),
	}
)

func roleNames() []any {
	out := make([]any, 0, len(domain.AllRoles))
	for _, r := range domain.AllRoles {
		out = append(out, r.String())
	}
	return out
}

type roleRequest struct {
	Role string `json:"role"`
}

func (r *roleRequest) normalize() {
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
}

func (r roleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role,
			validation.Required.Error("role_required"),
			validation.In(validRoles...).Error("invalid_role"),
		),
	)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (r *statusRequest) normalize() {
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
}

func (r statusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status,
			validation.Required.Error("status_required"),
			validation.In(validStatuses...).Error("invalid_status"),
		),
	)
}

type reviewEventRequest struct {
	AuthorID string `json:"author_id"`
	ToolID   string `json:"tool_id"`
}

func (r *reviewEventRequest) normalize() {
	r.AuthorID = strings.TrimSpace(r.AuthorID)
	r.ToolID = strings.TrimSpace(r.ToolID)
}

func (r reviewEventRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AuthorID,
			validation.When(r.ToolID == "", validation.Required.Error("author_or_tool_required")),
			validation.Length(0, maxIDLength),
		),
		validation.Field(&r.ToolID, validation.Length(0, maxIDLength)),
	)
}
