package deviceflow

import (
	"encoding/json"
	"os"

	"github.com/mailherald/mailherald/internal/errors"
)

// ClientCredentials identifies the OAuth client the device flow acts for.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

type clientSection struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type clientFile struct {
	Installed *clientSection `json:"installed"`
	Web       *clientSection `json:"web"`
	clientSection
}

// LoadClientCredentials reads the OAuth client file. Google's console emits
// the client under an "installed" or "web" key; a flat file with client_id
// at the top level is accepted too.
func LoadClientCredentials(path string) (*ClientCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.ErrClientCredentials{Path: path, Reason: "file missing"}
		}
		return nil, &errors.ErrFileRead{Path: path, Err: err}
	}

	var parsed clientFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &errors.ErrClientCredentials{Path: path, Reason: "not valid JSON"}
	}

	section := parsed.clientSection
	if parsed.Installed != nil {
		section = *parsed.Installed
	} else if parsed.Web != nil {
		section = *parsed.Web
	}

	if section.ClientID == "" {
		return nil, &errors.ErrClientCredentials{Path: path, Reason: "client_id not found"}
	}

	return &ClientCredentials{
		ClientID:     section.ClientID,
		ClientSecret: section.ClientSecret,
	}, nil
}
