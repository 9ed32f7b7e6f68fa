package config

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/spf13/pflag"
)

// BindFlags registers one flag per field of the struct pointed to by opts.
// Tags: help (usage), short (single letter), default, and flag to override
// the name derived from the field name. Fields tagged flag:"-" are skipped.
func BindFlags(fs *pflag.FlagSet, opts any) error {
	fields, err := options(opts)
	if err != nil {
		return err
	}

	for _, o := range fields {
		if o.flag == "-" {
			continue
		}
		help := o.field.Tag.Get("help")
		short := o.field.Tag.Get("short")
		def := o.field.Tag.Get("default")

		switch p := o.value.Addr().Interface().(type) {
		case *string:
			fs.StringVarP(p, o.flag, short, def, help)
		case *bool:
			b, err := parseDefault(def, strconv.ParseBool)
			if err != nil {
				return fmt.Errorf("field %s: %w", o.field.Name, err)
			}
			fs.BoolVarP(p, o.flag, short, b, help)
		case *int:
			n, err := parseDefault(def, strconv.Atoi)
			if err != nil {
				return fmt.Errorf("field %s: %w", o.field.Name, err)
			}
			fs.IntVarP(p, o.flag, short, n, help)
		case *float64:
			f, err := parseDefault(def, func(s string) (float64, error) {
				return strconv.ParseFloat(s, 64)
			})
			if err != nil {
				return fmt.Errorf("field %s: %w", o.field.Name, err)
			}
			fs.Float64VarP(p, o.flag, short, f, help)
		case *[]string:
			fs.StringSliceVarP(p, o.flag, short, nil, help)
		default:
			return fmt.Errorf("field %s: unsupported type %s", o.field.Name, o.field.Type)
		}
	}
	return nil
}

func parseDefault[T any](s string, parse func(string) (T, error)) (T, error) {
	var zero T
	if s == "" {
		return zero, nil
	}
	val, err := parse(s)
	if err != nil {
		return zero, fmt.Errorf("invalid default %q: %w", s, err)
	}
	return val, nil
}

// flagName returns the CLI flag for a field: the flag tag if present,
// otherwise the field name in kebab case.
func flagName(field reflect.StructField) string {
	if name := field.Tag.Get("flag"); name != "" {
		return name
	}
	return fieldNameToFlag(field.Name)
}
