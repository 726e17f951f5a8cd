package downloads

import (
	"errors"
	"strings"
	"testing"
)

func TestConnectionURL(t *testing.T) {
	conn := Connection{StorageAccount: "spexports", Container: "data", FileName: "sharepoint-downloads-latest.json"}
	got, err := conn.URL("")
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	want := "https://spexports.blob.core.windows.net/data/sharepoint-downloads-latest.json"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	got, err = Connection{StorageAccount: " spexports ", Container: "data", FileName: "/2024/01/latest.json"}.URL("web.core.windows.net.")
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	if got != "https://spexports.web.core.windows.net/data/2024/01/latest.json" {
		t.Fatalf("unexpected url %s", got)
	}
}

func TestConnectionValidateRejectsMalformedValues(t *testing.T) {
	cases := map[string]struct {
		conn  Connection
		field string
	}{
		"missing account":    {Connection{Container: "data", FileName: "a.json"}, "storage account name"},
		"uppercase account":  {Connection{StorageAccount: "SpExports", Container: "data", FileName: "a.json"}, "storage account name"},
		"hyphenated account": {Connection{StorageAccount: "your-storage-account", Container: "data", FileName: "a.json"}, "storage account name"},
		"short container":    {Connection{StorageAccount: "spexports", Container: "da", FileName: "a.json"}, "container name"},
		"double hyphen":      {Connection{StorageAccount: "spexports", Container: "my--data", FileName: "a.json"}, "container name"},
		"empty file":         {Connection{StorageAccount: "spexports", Container: "data"}, "file name"},
		"control characters": {Connection{StorageAccount: "spexports", Container: "data", FileName: "a\x01.json"}, "file name"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.conn.Validate()
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, cfgErr.Field)
			}
			if !IsLoadFailure(err) {
				t.Fatalf("configuration errors count as load failures")
			}
		})
	}
}

func TestConnectionURLReturnsConfigurationError(t *testing.T) {
	_, err := DefaultConnection().URL(DefaultStorageDomain)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("placeholder defaults must not produce a url, got %v", err)
	}
	if !strings.Contains(cfgErr.Error(), "storage account name") {
		t.Fatalf("unexpected message %q", cfgErr.Error())
	}
}

func TestConnectionValidateBucketObjectIgnoresAccount(t *testing.T) {
	conn := Connection{Container: "exports", FileName: "2024/latest.json"}
	if err := conn.Validate(); err == nil {
		t.Fatalf("expected account to be required for blob connections")
	}
	if err := conn.ValidateBucketObject(); err != nil {
		t.Fatalf("bucket connection: %v", err)
	}
	got, err := conn.BucketURL()
	if err != nil || got != "s3://exports/2024/latest.json" {
		t.Fatalf("unexpected bucket url %q (%v)", got, err)
	}

	var cfgErr *ConfigurationError
	if err := (Connection{Container: "exports"}).ValidateBucketObject(); !errors.As(err, &cfgErr) || cfgErr.Field != "file name" {
		t.Fatalf("expected file name error, got %v", err)
	}
}

func TestConnectionKey(t *testing.T) {
	conn := Connection{StorageAccount: "acct", Container: "data", FileName: "/x.json "}
	if conn.Key() != "acct/data/x.json" {
		t.Fatalf("unexpected key %s", conn.Key())
	}
}
