package envvar

const (
	// TTSDEnv is the environment variable used to determine the environment
	TTSDEnv = "TTSD_ENV"

	// TTSDServerHTTPPort is the environment variable used to determine the HTTP port
	TTSDServerHTTPPort = "TTSD_SERVER_HTTP_PORT"

	// TTSDServerGRPCPort is the environment variable used to determine the gRPC port
	TTSDServerGRPCPort = "TTSD_SERVER_GRPC_PORT"

	// TTSDModelsPath overrides the directory models are downloaded into
	TTSDModelsPath = "TTSD_MODELS_PATH"

	// TTSDConfigPath overrides the default config file location
	TTSDConfigPath = "TTSD_CONFIG_PATH"
)
