// Package azure keeps the delivery ledger in Azure Table Storage and archives
// rendered charts to Blob Storage. URLs starting with http select the
// Azurite emulator with its well-known shared key; anything else uses
// DefaultAzureCredential.
package azure

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

const (
	azuriteAccountName = "devstoreaccount1"
	azuriteAccountKey  = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

// isLocal reports whether serviceURL points at a plain-http emulator.
func isLocal(serviceURL string) bool {
	return strings.HasPrefix(serviceURL, "http://")
}

func azuriteCredentials() (string, string) {
	return azuriteAccountName, azuriteAccountKey
}

func newDefaultAzureCredential() (azcore.TokenCredential, error) {
	return azidentity.NewDefaultAzureCredential(nil)
}

// hasErrorCode reports whether err is an Azure response error carrying code.
func hasErrorCode(err error, code string) bool {
	var azErr *azcore.ResponseError
	return errors.As(err, &azErr) && azErr.ErrorCode == code
}

func isConflict(err error) bool {
	var azErr *azcore.ResponseError
	return errors.As(err, &azErr) && (azErr.StatusCode == http.StatusConflict || azErr.ErrorCode == "EntityAlreadyExists")
}

func isNotFound(err error) bool {
	var azErr *azcore.ResponseError
	return errors.As(err, &azErr) && (azErr.StatusCode == http.StatusNotFound || azErr.ErrorCode == "ResourceNotFound")
}
