package valueobject

import "github.com/ignatzorin/rental-escrow/internal/pkg/apperror"

// ActorRole роль участника относительно конкретной заявки.
type ActorRole string

const (
	RoleRequester ActorRole = "requester"
	RoleProvider  ActorRole = "provider"
	RoleOwner     ActorRole = "owner"
	RoleSystem    ActorRole = "system"
)

func (r ActorRole) IsValid() bool {
	switch r {
	case RoleRequester, RoleProvider, RoleOwner, RoleSystem:
		return true
	}
	return false
}

func NewActorRole(role string) (ActorRole, error) {
	r := ActorRole(role)
	if !r.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректная роль участника")
	}
	return r, nil
}
