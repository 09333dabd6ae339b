package config

// EnvPrefix is the envconfig namespace for all GiftMarket variables.
const EnvPrefix = "GIFTMARKET"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "GIFTMARKET_DB_DSN"
	EnvDBHost = "GIFTMARKET_DB_HOST"
	EnvDBUser = "GIFTMARKET_DB_USER"
	EnvDBName = "GIFTMARKET_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
