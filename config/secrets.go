package config

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretPrefix marks a value to be fetched from AWS Secrets Manager:
// secretsmanager://<secret-id>#<json-key>. Without #key the whole secret string is used.
const SecretPrefix = "secretsmanager://"

// SecretsAPI is the subset of the Secrets Manager client used to resolve references.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ResolveSecrets replaces every secretsmanager:// string in cfg with the referenced value.
// Each secret is fetched at most once.
func ResolveSecrets(ctx context.Context, cfg *Config, api SecretsAPI) error {
	r := &secretResolver{api: api, cache: map[string]string{}}
	return r.walk(ctx, reflect.ValueOf(cfg).Elem(), "")
}

type secretResolver struct {
	api   SecretsAPI
	cache map[string]string
}

func (r *secretResolver) walk(ctx context.Context, v reflect.Value, path string) error {
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			name := t.Field(i).Tag.Get("yaml")
			if name == "" {
				name = strings.ToLower(t.Field(i).Name)
			}
			if err := r.walk(ctx, v.Field(i), strings.TrimPrefix(path+"."+name, ".")); err != nil {
				return err
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			if err := r.walk(ctx, v.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case reflect.String:
		s := v.String()
		if !strings.HasPrefix(s, SecretPrefix) {
			return nil
		}
		val, err := r.resolve(ctx, strings.TrimPrefix(s, SecretPrefix))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		v.SetString(val)
	}
	return nil
}

func (r *secretResolver) resolve(ctx context.Context, ref string) (string, error) {
	id, key, _ := strings.Cut(ref, "#")
	if id == "" {
		return "", fmt.Errorf("empty secret id in %q", SecretPrefix+ref)
	}
	raw, ok := r.cache[id]
	if !ok {
		if r.api == nil {
			return "", fmt.Errorf("secret %s referenced but no Secrets Manager client configured", id)
		}
		out, err := r.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
		if err != nil {
			return "", fmt.Errorf("get secret %s: %w", id, err)
		}
		raw = aws.ToString(out.SecretString)
		r.cache[id] = raw
	}
	if key == "" {
		return raw, nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", fmt.Errorf("secret %s is not a JSON object: %w", id, err)
	}
	val, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("secret %s has no key %q", id, key)
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	return fmt.Sprint(val), nil
}

// HasSecretRefs reports whether any value in cfg needs ResolveSecrets.
func HasSecretRefs(cfg *Config) bool {
	found := false
	var walk func(v reflect.Value)
	walk = func(v reflect.Value) {
		switch v.Kind() {
		case reflect.Struct:
			for i := 0; i < v.NumField(); i++ {
				if v.Type().Field(i).IsExported() {
					walk(v.Field(i))
				}
			}
		case reflect.Slice:
			for i := 0; i < v.Len(); i++ {
				walk(v.Index(i))
			}
		case reflect.String:
			found = found || strings.HasPrefix(v.String(), SecretPrefix)
		}
	}
	walk(reflect.ValueOf(cfg).Elem())
	return found
}
