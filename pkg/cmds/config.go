package cmds

import (
	"github.com/go-go-golems/sqlagent/pkg/settings"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// LoadSettings resolves the settings of cmd from defaults, the config file,
// the environment and the command line flags, in increasing priority. The
// result is not validated; NewRuntime does that.
func LoadSettings(cmd *cobra.Command) (*settings.Settings, error) {
	v := viper.New()
	if err := settings.BindViper(v, cmd.Flags()); err != nil {
		return nil, err
	}

	configFile, _ := cmd.Flags().GetString("config")
	if err := settings.ReadConfigFile(v, configFile); err != nil {
		return nil, err
	}

	s, err := settings.FromViper(v)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("config", v.ConfigFileUsed()).
		Str("api_type", string(s.Backend.ApiType)).
		Str("database", s.Database.Redacted()).
		Msg("loaded settings")
	return s, nil
}
