package envvar

const (
	// IndexTTSEnv is the environment variable used to determine the environment.
	IndexTTSEnv = "INDEXTTS_ENV"

	// IndexTTSConfig points to the YAML configuration file.
	IndexTTSConfig = "INDEXTTS_CONFIG"

	// IndexTTSModelDir overrides the model checkpoint directory.
	IndexTTSModelDir = "INDEXTTS_MODEL_DIR"

	// IndexTTSDevice overrides the inference device selector.
	IndexTTSDevice = "INDEXTTS_DEVICE"

	// IndexTTSHost is the environment variable used to determine the bind host.
	IndexTTSHost = "INDEXTTS_HOST"

	// IndexTTSPort is the environment variable used to determine the HTTP port.
	IndexTTSPort = "INDEXTTS_PORT"

	// IndexTTSGRPCPort is the environment variable used to determine the gRPC health port.
	IndexTTSGRPCPort = "INDEXTTS_GRPC_PORT"

	// IndexTTSOutputDir overrides the scratch/output directory.
	IndexTTSOutputDir = "INDEXTTS_OUTPUT_DIR"

	// IndexTTSLogLevel overrides the log level.
	IndexTTSLogLevel = "INDEXTTS_LOG_LEVEL"

	// HuggingFaceToken is read when a checkpoint download needs authentication.
	HuggingFaceToken = "HF_TOKEN"
)
