package ubifs

// Option configures an FS, mirroring ubi.Option / the teacher's functional
// option shape (squashfs.Option).
type Option func(c *config) error

type config struct {
	warnOnly   bool
	masterKey  []byte // spec: master_key, optional 64-byte AES key
}

// WarnOnly switches bad-node-CRC and decode failures from abort to
// record-and-continue (spec §4.13).
func WarnOnly() Option {
	return func(c *config) error {
		c.warnOnly = true
		return nil
	}
}

// WithMasterKey supplies the 64-byte AES master key (spec §6, §9). The FS
// only stores it: Walk and Reassemble do not decrypt, so with or without
// it, encrypted names stay opaque and encrypted data typically fails to
// decompress.
func WithMasterKey(key []byte) Option {
	return func(c *config) error {
		c.masterKey = key
		return nil
	}
}

func buildConfig(opts []Option) (*config, error) {
	c := &config{}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}
