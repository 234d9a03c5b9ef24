// Package options defines the interface shared by all option groups and
// helpers for handling them as named config sections.
package options

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Join concatenates prefixes with "." and appends a trailing "." when the
// result is non-empty, e.g. Join("cache") + "redis.host" = "cache.redis.host".
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}

// IOptions is implemented by every option group.
type IOptions interface {
	// AddFlags adds flags related to given flagset.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)

	// Complete fills in defaults that depend on other fields.
	Complete() error

	// Validate returns every problem found, nil when valid.
	Validate() []error
}

// Section 一个带名称的配置段，名称同时作为 flag 分组与配置文件中的键。
type Section struct {
	Name    string
	Options IOptions
}

// CompleteAll 按顺序补全，返回第一个错误。
func CompleteAll(sections ...Section) error {
	for _, s := range sections {
		if err := s.Options.Complete(); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	return nil
}

// ValidateAll 汇总全部配置段的校验错误。
func ValidateAll(sections ...Section) []error {
	var errs []error
	for _, s := range sections {
		errs = append(errs, s.Options.Validate()...)
	}
	return errs
}
