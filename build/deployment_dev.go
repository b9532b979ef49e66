//go:build !prod
// +build !prod

package build

const deployment = Development
