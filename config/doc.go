// Package config declares where the passenger datasets live, what they look
// like, and how pipelines over them are assembled.
//
// Paths: one constant per dataset, relative to a data root, for the four
// lifecycle stages (schemeless raw, schematic raw, preprocessed, feature
// store). StagePath and Resolve derive them programmatically.
//
// Schemas: RawSchema (14 fields) and FeaturizedSchema (13 fields) as Arrow
// schemas. Each field records its role (categorical, numerical, boolean,
// target) under the RoleKey metadata key.
//
// Column groups: the categorical, numerical and boolean column lists and
// TargetColumn. CheckGroups verifies a grouping against a schema.
//
// Pipelines are defined in a YAML settings file that references datasets and
// steps by name:
//
//	pipelines:
//	  promote-train:
//	    source: schemeless/train
//	    sink: schematic/train
//	    steps:
//	      - conform-raw
//	      - name: require-rows
//	        timeout: 30s
//
// Build them with BuildPipeline(DefaultSteps(), DefaultDatasets(), sess, root, cfg),
// where sess is a *session.Session.
package config
