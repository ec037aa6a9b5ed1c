package validator

import (
	"errors"
	"testing"

	"github.com/tenantaudit/api/pkg/domain/shared"
)

func TestNew(t *testing.T) {
	v := New()
	if v == nil {
		t.Fatal("expected validator to be created")
	}
	if v.validate == nil {
		t.Fatal("expected internal validator to be initialized")
	}
}

func TestValidateAdminURL(t *testing.T) {
	v := New()

	type TestStruct struct {
		URL string `validate:"required,admin_url"`
	}

	tests := []struct {
		name    string
		input   TestStruct
		wantErr bool
	}{
		{
			name:    "valid admin url",
			input:   TestStruct{URL: "https://contoso-admin.sharepoint.com"},
			wantErr: false,
		},
		{
			name:    "invalid - regular tenant host",
			input:   TestStruct{URL: "https://contoso.sharepoint.com"},
			wantErr: true,
		},
		{
			name:    "invalid - plain http",
			input:   TestStruct{URL: "http://contoso-admin.sharepoint.com"},
			wantErr: true,
		},
		{
			name:    "invalid - empty",
			input:   TestStruct{URL: ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateUPN(t *testing.T) {
	v := New()

	type TestStruct struct {
		UPN string `validate:"required,upn"`
	}

	tests := []struct {
		name    string
		input   TestStruct
		wantErr bool
	}{
		{
			name:    "valid upn",
			input:   TestStruct{UPN: "jane.doe@contoso.com"},
			wantErr: false,
		},
		{
			name:    "invalid - no at sign",
			input:   TestStruct{UPN: "jane.doe"},
			wantErr: true,
		},
		{
			name:    "invalid - leading at sign",
			input:   TestStruct{UPN: "@contoso.com"},
			wantErr: true,
		},
		{
			name:    "invalid - trailing at sign",
			input:   TestStruct{UPN: "jane.doe@"},
			wantErr: true,
		},
		{
			name:    "invalid - double at sign",
			input:   TestStruct{UPN: "jane@doe@contoso.com"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateScanKind(t *testing.T) {
	v := New()

	type TestStruct struct {
		Kind string `validate:"required,scan_kind"`
	}

	tests := []struct {
		name    string
		input   TestStruct
		wantErr bool
	}{
		{name: "apps", input: TestStruct{Kind: "apps"}, wantErr: false},
		{name: "files", input: TestStruct{Kind: "files"}, wantErr: false},
		{name: "unknown", input: TestStruct{Kind: "sites"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidationErrors_ClassifiedAsValidation(t *testing.T) {
	v := New()

	type TestStruct struct {
		Name string `validate:"required"`
	}

	err := v.Validate(TestStruct{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, shared.ErrValidation) {
		t.Errorf("expected error to classify as shared.ErrValidation, got %v", err)
	}
}
