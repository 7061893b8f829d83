package httpadapter

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

const (
	userIDHeader    = "X-User-Id"
	userRoleHeader  = "X-User-Role"
	userEmailHeader = "X-User-Email"
)

// identityFromRequest reads the caller forwarded by the authentication gateway.
func identityFromRequest(r *http.Request) (domain.Identity, error) {
	rawID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if rawID == "" {
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthorized, "identify caller", errors.New("missing user id"))
	}
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || userID <= 0 {
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthorized, "identify caller", errors.New("malformed user id"))
	}
	role, ok := domain.ParseRole(r.Header.Get(userRoleHeader))
	if !ok {
		return domain.Identity{}, domain.WrapError(domain.ErrUnauthorized, "identify caller", errors.New("unknown role"))
	}
	return domain.Identity{
		UserID: userID,
		Role:   role,
		Email:  strings.TrimSpace(r.Header.Get(userEmailHeader)),
	}, nil
}

// optionalIdentity treats an absent user id as an anonymous caller.
func optionalIdentity(r *http.Request) (domain.Identity, error) {
	if strings.TrimSpace(r.Header.Get(userIDHeader)) == "" {
		return domain.Identity{}, nil
	}
	return identityFromRequest(r)
}

func organizerGrant(r *http.Request) (domain.OrganizerGrant, error) {
	who, err := identityFromRequest(r)
	if err != nil {
		return domain.OrganizerGrant{}, err
	}
	return who.AsOrganizer()
}
