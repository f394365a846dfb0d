// Package modelcatalog serves the model list returned by GET /v1/models.
//
// A catalog is a YAML document:
//
//	models:
//	  - id: deep_seek
//	    name: deepseek_think
//	    owned_by: yuanbao
//
// Catalogs come from the embedded default, a local file or an HTTP endpoint. Sources can be
// layered with Fallback so a failing remote endpoint degrades to the embedded list.
package modelcatalog
