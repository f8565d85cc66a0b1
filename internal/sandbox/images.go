package sandbox

// DefaultPythonImage runs generated analysis code when no image is configured.
const DefaultPythonImage = "python:3.11-slim"

// DockerImage returns the image generated code runs in.
func DockerImage(cfg Config) string {
	if cfg.DockerImage != "" {
		return cfg.DockerImage
	}
	return DefaultPythonImage
}
