package diagram

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type mappingEntry struct {
	Service string
	Module  string
}

// Mapping associates "diagrams" AWS node class names with the module that
// defines them (EC2 -> compute). Entry order is preserved.
type Mapping struct {
	entries []mappingEntry
}

// Len returns the number of services in the mapping.
func (m Mapping) Len() int { return len(m.entries) }

// Module returns the module for service.
func (m Mapping) Module(service string) (string, bool) {
	for _, e := range m.entries {
		if e.Service == service {
			return e.Module, true
		}
	}
	return "", false
}

// ParseMapping reads a service-to-module object. JSON is accepted as well
// as YAML. Key order in the document is kept.
func ParseMapping(data []byte) (Mapping, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Mapping{}, fmt.Errorf("parse mapping: %w", err)
	}
	if len(doc.Content) == 0 {
		return Mapping{}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return Mapping{}, fmt.Errorf("parse mapping: line %d: expected an object of service: module", root.Line)
	}
	var m Mapping
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return Mapping{}, fmt.Errorf("parse mapping: line %d: module for %q must be a string", v.Line, k.Value)
		}
		m.entries = append(m.entries, mappingEntry{Service: k.Value, Module: v.Value})
	}
	return m, nil
}

// LoadMapping reads a mapping file.
func LoadMapping(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Mapping{}, fmt.Errorf("read mapping: %w", err)
	}
	return ParseMapping(data)
}

// DefaultMapping covers the services most architecture requests mention.
func DefaultMapping() Mapping {
	m, err := ParseMapping([]byte(defaultMappingYAML))
	if err != nil {
		panic(err)
	}
	return m
}

const defaultMappingYAML = `
EC2: compute
Lambda: compute
ECS: compute
EKS: compute
Fargate: compute
ElasticBeanstalk: compute
S3: storage
EFS: storage
RDS: database
Aurora: database
Dynamodb: database
ElastiCache: database
Redshift: database
ELB: network
ALB: network
CloudFront: network
APIGateway: network
Route53: network
VPC: network
SQS: integration
SNS: integration
Eventbridge: integration
StepFunctions: integration
Cognito: security
IAM: security
WAF: security
KMS: security
Cloudwatch: management
Cloudformation: management
Kinesis: analytics
Athena: analytics
Glue: analytics
Quicksight: analytics
Sagemaker: ml
Rekognition: ml
Comprehend: ml
`
