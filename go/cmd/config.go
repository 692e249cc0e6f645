package cmd

import (
	"io/ioutil"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"

	"github.com/lunixbochs/exocorn/go/models"
)

const (
	configName = "exocorn.toml"
	envPrefix  = "EXOCORN"
)

// LoadConfig layers the defaults, a TOML file and EXOCORN_* environment
// variables. With an empty path the file is looked up in the user and
// system config directories and is optional.
func LoadConfig(path string) (*models.Config, error) {
	config := models.DefaultConfig()
	var data []byte
	var err error
	if path != "" {
		if data, err = ioutil.ReadFile(path); err != nil {
			return nil, errors.Wrap(err, "reading config")
		}
	} else {
		dirs := configdir.New("exocorn", "exocorn")
		if folder := dirs.QueryFolderContainsFile(configName); folder != nil {
			path = folder.Path
			if data, err = folder.ReadFile(configName); err != nil {
				return nil, errors.Wrap(err, "reading config")
			}
		}
	}
	if data != nil {
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", path)
		}
	}
	if err := envconfig.Process(envPrefix, config); err != nil {
		return nil, errors.Wrap(err, "reading environment")
	}
	return config, config.Validate()
}
