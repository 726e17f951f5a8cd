package downloads

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultStorageDomain is the blob endpoint suffix used when none is configured.
const DefaultStorageDomain = "blob.core.windows.net"

// Connection identifies the snapshot document in the storage account.
type Connection struct {
	StorageAccount string `json:"storageAccountName" yaml:"storage_account" validate:"required,min=3,max=24,alphanum,lowercase"`
	Container      string `json:"containerName" yaml:"container" validate:"required,min=3,max=63,container"`
	FileName       string `json:"fileName" yaml:"file_name" validate:"required,max=1024,printascii"`
}

// DefaultConnection mirrors the placeholder settings shipped with the dashboard.
func DefaultConnection() Connection {
	return Connection{
		StorageAccount: "your-storage-account",
		Container:      "data",
		FileName:       "sharepoint-downloads-latest.json",
	}
}

var containerPattern = regexp.MustCompile(`^[a-z0-9]+([.-][a-z0-9]+)*$`)

var connectionValidator = newConnectionValidator()

func newConnectionValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("container", func(fl validator.FieldLevel) bool {
		return containerPattern.MatchString(fl.Field().String())
	})
	return v
}

// Normalize trims surrounding whitespace and leading slashes from the file name.
func (c Connection) Normalize() Connection {
	return Connection{
		StorageAccount: strings.TrimSpace(c.StorageAccount),
		Container:      strings.TrimSpace(c.Container),
		FileName:       strings.TrimLeft(strings.TrimSpace(c.FileName), "/"),
	}
}

// Validate rejects settings that cannot produce a usable endpoint.
func (c Connection) Validate() error {
	return validationError(connectionValidator.Struct(c))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ConfigurationError{Field: fieldLabel(fe.Field()), Message: ruleMessage(fe.Tag(), fe.Param())}
	}
	return &ConfigurationError{Field: "connection", Message: err.Error()}
}

// ConnectionCheck validates connection settings for one snapshot source.
type ConnectionCheck func(Connection) error

// ValidateBucketObject checks only the container and file name. Object stores addressed
// by bucket and key ignore the storage account, so it may be left empty.
func (c Connection) ValidateBucketObject() error {
	return validationError(connectionValidator.StructExcept(c, "StorageAccount"))
}

// BucketURL builds s3://{container}/{file}.
func (c Connection) BucketURL() (string, error) {
	c = c.Normalize()
	if err := c.ValidateBucketObject(); err != nil {
		return "", err
	}
	return "s3://" + c.Container + "/" + c.FileName, nil
}

// URL builds https://{account}.{domain}/{container}/{file}.
func (c Connection) URL(domain string) (string, error) {
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(domain) == "" {
		domain = DefaultStorageDomain
	}
	u := url.URL{
		Scheme: "https",
		Host:   c.StorageAccount + "." + strings.Trim(domain, "./"),
		Path:   "/" + c.Container + "/" + c.FileName,
	}
	return u.String(), nil
}

// Key identifies the connection independently of the storage domain.
func (c Connection) Key() string {
	c = c.Normalize()
	return strings.Join([]string{c.StorageAccount, c.Container, c.FileName}, "/")
}

func fieldLabel(field string) string {
	switch field {
	case "StorageAccount":
		return "storage account name"
	case "Container":
		return "container name"
	case "FileName":
		return "file name"
	default:
		return strings.ToLower(field)
	}
}

func ruleMessage(tag, param string) string {
	switch tag {
	case "required":
		return "value is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", param)
	case "max":
		return fmt.Sprintf("must be at most %s characters", param)
	case "alphanum", "lowercase":
		return "only lowercase letters and digits are allowed"
	case "container":
		return "only lowercase letters, digits, dots and single hyphens are allowed"
	case "printascii":
		return "only printable ASCII characters are allowed"
	default:
		return "value is not valid"
	}
}
