package config

// EnvPrefix is applied by envconfig to every variable lookup.
const EnvPrefix = "CINEMA"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv = "CINEMA_APP_ENV"
	EnvDBDSN  = "CINEMA_DB_DSN"
	EnvDBHost = "CINEMA_DB_HOST"
	EnvDBUser = "CINEMA_DB_USER"
	EnvDBName = "CINEMA_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
