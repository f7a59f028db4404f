package host

import "fmt"

// ValidationError reports a host definition that cannot be rendered.
type ValidationError struct {
	Host   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Host == "" {
		return e.Reason
	}
	return fmt.Sprintf("host %s: %s", e.Host, e.Reason)
}

// Validate checks the fields the renderer cannot do without.
func (h *Host) Validate() error {
	if h.Name == "" {
		return &ValidationError{Reason: "host has no name"}
	}
	if h.Box == "" {
		return &ValidationError{Host: h.Name, Reason: "no box defined"}
	}
	if h.ShellProvisioner != nil && h.ShellProvisioner.Path == "" {
		return &ValidationError{Host: h.Name, Reason: "no path defined for shell provisioner, or path is empty"}
	}
	for _, p := range h.ForwardedPorts {
		if p.From <= 0 || p.To <= 0 {
			return &ValidationError{Host: h.Name, Reason: fmt.Sprintf("forwarded port %q needs both from and to", p.Name)}
		}
	}
	return nil
}

// ValidateAll validates every host and rejects display name collisions.
func ValidateAll(hosts []*Host) error {
	seen := make(map[string]string, len(hosts))
	for _, h := range hosts {
		if err := h.Validate(); err != nil {
			return err
		}
		if other, ok := seen[h.DisplayName()]; ok {
			return &ValidationError{
				Host:   h.Name,
				Reason: fmt.Sprintf("hostname %s collides with host %s", h.DisplayName(), other),
			}
		}
		seen[h.DisplayName()] = h.Name
	}
	return nil
}
