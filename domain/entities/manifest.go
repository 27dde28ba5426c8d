package entities

// Manifest describes a plugin module: its identity plus optional overrides
// for the guest export names the host binds to.
type Manifest struct {
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Version     string      `json:"version" yaml:"version" validate:"required,semver"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Exports     ExportNames `json:"exports,omitempty" yaml:"exports,omitempty"`
}

// ExportNames overrides the default guest export names. Empty fields keep
// the defaults (_start, init, transform, malloc, __collect).
type ExportNames struct {
	Start   string `json:"start,omitempty" yaml:"start,omitempty"`
	Init    string `json:"init,omitempty" yaml:"init,omitempty"`
	Execute string `json:"execute,omitempty" yaml:"execute,omitempty"`
	Alloc   string `json:"alloc,omitempty" yaml:"alloc,omitempty"`
	Collect string `json:"collect,omitempty" yaml:"collect,omitempty"`
}
