package service

import (
	"testing"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/identity"
	"github.com/ourchat/ourchat-server/internal/upload"
	"github.com/ourchat/ourchat-server/internal/webrtcroom"
)

func TestMapIdentityErr(t *testing.T) {
	cases := map[error]apierrors.Code{
		identity.ErrInvalidCredentials:  apierrors.CodeUnauthenticated,
		identity.ErrAccountDeactivated:  apierrors.CodeFailedPrecondition,
		identity.ErrEmailAlreadyTaken:   apierrors.CodeAlreadyExists,
		identity.ErrInvalidEmail:        apierrors.CodeInvalidArgument,
	}
	for in, want := range cases {
		apiErr, ok := apierrors.As(mapIdentityErr(in))
		if !ok || apiErr.Code != want {
			t.Errorf("mapIdentityErr(%v) code = %v, want %v", in, apiErr, want)
		}
	}
}

func TestMapUploadErr(t *testing.T) {
	cases := map[error]apierrors.Code{
		upload.ErrQuotaExceeded: apierrors.CodeResourceExhausted,
		upload.ErrHashMismatch:  apierrors.CodeInvalidArgument,
		upload.ErrWrongInstance: apierrors.CodeFailedPrecondition,
	}
	for in, want := range cases {
		apiErr, ok := apierrors.As(mapUploadErr(in))
		if !ok || apiErr.Code != want {
			t.Errorf("mapUploadErr(%v) code = %v, want %v", in, apiErr, want)
		}
	}
}

func TestMapRoomErr(t *testing.T) {
	if apiErr, ok := apierrors.As(mapRoomErr(webrtcroom.ErrAlreadyMember)); !ok || apiErr.Code != apierrors.CodeAlreadyExists {
		t.Errorf("mapRoomErr(ErrAlreadyMember) = %v, want CodeAlreadyExists", apiErr)
	}
	if apiErr, ok := apierrors.As(mapRoomErr(webrtcroom.ErrCreatorOnly)); !ok || apiErr.Code != apierrors.CodePermissionDenied {
		t.Errorf("mapRoomErr(ErrCreatorOnly) = %v, want CodePermissionDenied", apiErr)
	}
}
