package provider

import (
	"errors"
	"testing"

	smithy "github.com/aws/smithy-go"

	"github.com/cloudorch/orchestrator/pkg/orcherr"
)

func TestTranslateMapsEveryReason(t *testing.T) {
	cases := []struct {
		reason adapterReason
		want   orcherr.Code
	}{
		{reasonPermissionDenied, orcherr.CodeForbidden},
		{reasonNotFound, orcherr.CodeNotFound},
		{reasonQuotaExceeded, orcherr.CodeOverloaded},
		{reasonInvalidArgument, orcherr.CodeInvalidArgument},
		{reasonUnavailable, orcherr.CodeProviderUnavailable},
		{reasonTransient, orcherr.CodeTransient},
	}
	for _, tc := range cases {
		err := translate(tc.reason, "provider-test", "op", "message", nil)
		if err.Code != tc.want {
			t.Errorf("translate(%v) code = %v, want %v", tc.reason, err.Code, tc.want)
		}
	}
}

func TestTranslatePreservesCause(t *testing.T) {
	cause := errors.New("underlying sdk error")
	err := translate(reasonTransient, "provider-test", "op", "wrapped", cause)
	if !errors.Is(err, cause) {
		t.Error("translate() result does not unwrap to the original cause")
	}
}

func TestTranslateAWSErrorClassifiesKnownCodes(t *testing.T) {
	cases := []struct {
		code string
		want orcherr.Code
	}{
		{"NoSuchKey", orcherr.CodeNotFound},
		{"AccessDenied", orcherr.CodeForbidden},
		{"SlowDown", orcherr.CodeOverloaded},
		{"InvalidArgument", orcherr.CodeInvalidArgument},
		{"ServiceUnavailable", orcherr.CodeProviderUnavailable},
		{"SomeUnmappedCode", orcherr.CodeTransient},
	}
	for _, tc := range cases {
		apiErr := &smithy.GenericAPIError{Code: tc.code, Message: "boom"}
		got := translateAWSError(apiErr, "provider-aws", "op")
		if got.Code != tc.want {
			t.Errorf("translateAWSError(code=%s) = %v, want %v", tc.code, got.Code, tc.want)
		}
	}
}

func TestTranslateAWSErrorNilIsNil(t *testing.T) {
	if translateAWSError(nil, "provider-aws", "op") != nil {
		t.Error("translateAWSError(nil) should return nil")
	}
}
