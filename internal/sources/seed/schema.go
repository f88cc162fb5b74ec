package seed

// File is the top-level structure of the seed file
type File struct {
	Instances []InstanceSpec `yaml:"instances"`
}

// InstanceSpec declares one instance to pre-create
type InstanceSpec struct {
	Name string `yaml:"name"`
	// Connect requests a QR code right after creation
	Connect bool `yaml:"connect,omitempty"`
}
