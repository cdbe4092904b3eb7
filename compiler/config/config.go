package config

import (
	"os"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
)

type (
	// Features is the host CPU capability set the backend may rely on.
	Features struct {
		MOVBE bool `yaml:"movbe"`
		LZCNT bool `yaml:"lzcnt"`
		BMI2  bool `yaml:"bmi2"`
		AVX   bool `yaml:"avx"`
	}

	// Passes switches individual optimizer passes.
	Passes struct {
		FloatCopies   bool `yaml:"float_copies"`
		IntegerCopies bool `yaml:"integer_copies"`
		CRBits        bool `yaml:"cr_bits"`
		GQR           bool `yaml:"gqr"`
		FlagReuse     bool `yaml:"flag_reuse"`
		DeadCode      bool `yaml:"dead_code"`
	}

	// Options are read-only once a compilation started
	// and may be shared between concurrent compilations.
	Options struct {
		Features Features `yaml:"features"`
		Passes   Passes   `yaml:"passes"`

		// KnownGQR maps a GQR index to the value the OS keeps in it.
		// Used only for functions which never write that GQR.
		KnownGQR map[int]uint32 `yaml:"known_gqr"`

		// Verify runs allocator invariant checks after allocation.
		Verify bool `yaml:"verify"`
	}
)

// Default is a conservative configuration: no optional CPU features,
// every pass enabled, OS default quantization registers.
func Default() *Options {
	return &Options{
		Passes: Passes{
			FloatCopies:   true,
			IntegerCopies: true,
			CRBits:        true,
			GQR:           true,
			FlagReuse:     true,
			DeadCode:      true,
		},
		KnownGQR: map[int]uint32{
			2: 0x0004_0004, // u8
			3: 0x0005_0005, // u16
			4: 0x0006_0006, // s8
			5: 0x0007_0007, // s16
		},
		Verify: true,
	}
}

// Parse overlays a YAML document on top of Default.
func Parse(data []byte) (*Options, error) {
	o := Default()

	err := yaml.Unmarshal(data, o)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal")
	}

	err = o.check()
	if err != nil {
		return nil, err
	}

	return o, nil
}

func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	o, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse %v", path)
	}

	return o, nil
}

func (o *Options) check() error {
	for i := range o.KnownGQR {
		if i < 0 || i >= 8 {
			return errors.New("known_gqr: bad index %d", i)
		}
	}

	return nil
}

// GQR returns the value of GQR i if it is fixed by the OS.
// GQR0 is zero there: plain single precision floats.
// Callers still check the function does not write the GQR itself.
func (o *Options) GQR(i int) (uint32, bool) {
	if i == 0 {
		return 0, true
	}

	v, ok := o.KnownGQR[i]

	return v, ok
}
