package ubi

// Option configures a Source or the volume assembler. Mirrors the teacher's
// functional-option shape (squashfs.Option).
type Option func(c *config) error

type config struct {
	warnOnly      bool // spec: warn_only_block_read_errors
	ignoreHdrErrs bool // spec: ignore_block_header_errors
	ubootFix      bool // spec: uboot_fix
	blockSize     int  // set by WithBlockSize; not read by NewSource or AssembleVolumes
}

// WarnOnly switches PEB/LEB read and header-CRC failures from abort to
// warn-and-continue (spec §4.13).
func WarnOnly() Option {
	return func(c *config) error {
		c.warnOnly = true
		return nil
	}
}

// IgnoreHeaderErrors accepts CRC-failed EC/VID headers as valid instead of
// marking the PEB invalid.
func IgnoreHeaderErrors() Option {
	return func(c *config) error {
		c.ignoreHdrErrs = true
		return nil
	}
}

// UbootFix folds PEBs whose image_seq is 0 into every image, working
// around firmware that zeroes that field (spec §4.5).
func UbootFix() Option {
	return func(c *config) error {
		c.ubootFix = true
		return nil
	}
}

// WithBlockSize records a PEB size in the option set. NewSource and
// AssembleVolumes do not read it: NewSource takes the block size from its
// blockSize argument, and auto-detection is a separate DetectBlockSize call.
func WithBlockSize(n int) Option {
	return func(c *config) error {
		c.blockSize = n
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
