package scenario

import (
	"github.com/jordanhubbard/gauntlet/pkg/models"
)

// Template is the content a category draws its scenarios from.
type Template struct {
	Title        string
	Requirements []string
	Criteria     []string
	// Strength pushes an agent already good at the category further.
	Strength string
	// Weakness targets a known gap in the category.
	Weakness string
}

// Catalog maps categories to templates.
type Catalog map[models.Category]Template

// AdvancedCriteria are appended for multipliers x4 and above.
var AdvancedCriteria = []string{
	"Solution includes comprehensive testing",
	"Documentation is complete and professional",
	"Code is production-ready",
	"Performance benchmarks are met",
}

// CollaborationCriteria are appended to every group scenario.
var CollaborationCriteria = []string{
	"Each participant's contribution is clearly identified",
	"Integration points between contributions are explicit and consistent",
}

// DefaultCatalog returns the built-in templates for every supported category.
func DefaultCatalog() Catalog {
	return Catalog{
		models.CategoryCoding: {
			Title: "Implementation challenge",
			Requirements: []string{
				"Implement a rate-limited job queue with async error handling",
				"Create a repository layer for user management using dependency injection",
				"Build a caching service with explicit invalidation rules",
				"Develop a streaming file processor that is memory efficient",
				"Code a validation module that is type safe and reports every failure",
				"Implement retry logic with exponential backoff for outbound calls",
			},
			Criteria: []string{
				"Code follows idiomatic conventions for the chosen language",
				"Code includes error handling for every failure path",
				"Code is documented where behaviour is not obvious",
				"Implementation satisfies every stated requirement",
			},
			Strength: "Implement a complex system with exceptional code quality and maintainability",
			Weakness: "Implement comprehensive error handling and documentation",
		},
		models.CategoryArchitecture: {
			Title: "Architecture design",
			Requirements: []string{
				"Design an event-driven architecture for an e-commerce checkout handling millions of orders",
				"Architect a multi-tenant platform with isolated data stores",
				"Design a cloud-native deployment supporting real-time workloads",
				"Create a service boundary map for a healthcare records system",
				"Design a read-heavy reporting pipeline with caches and queues",
				"Architect a migration path from a monolith to services without downtime",
			},
			Criteria: []string{
				"Architecture is scalable and maintainable",
				"Components are properly decoupled with clear interfaces",
				"Architecture follows established design patterns",
				"Failure modes and recovery paths are described",
			},
			Strength: "Design a scalable architecture for a complex distributed system",
			Weakness: "Design a robust architecture with clear separation of concerns",
		},
		models.CategorySecurity: {
			Title: "Security hardening",
			Requirements: []string{
				"Add protection against SQL injection in the data access layer",
				"Implement authentication with token rotation for API endpoints",
				"Secure an admin panel with role-based authorization",
				"Encrypt payment data at rest with AES-GCM and manage the keys",
				"Add rate limiting and input validation against credential stuffing",
				"Threat model a file upload service and mitigate the top risks",
			},
			Criteria: []string{
				"No injection, XSS or authentication vulnerabilities remain",
				"Authentication and authorization are enforced on every entry point",
				"Sensitive data is encrypted where necessary",
				"Threats and mitigations are explicitly documented",
			},
			Strength: "Design a security system that goes beyond standard practices",
			Weakness: "Implement multi-layer security with threat modeling",
		},
		models.CategoryPerformance: {
			Title: "Performance tuning",
			Requirements: []string{
				"Optimize database queries in a reporting API for response time",
				"Scale a websocket service to handle high concurrent traffic",
				"Reduce memory usage of a batch processing job",
				"Profile a slow endpoint and remove the main bottleneck",
				"Introduce caching for expensive computations without stale reads",
				"Improve throughput of a message consumer under load",
			},
			Criteria: []string{
				"System handles the expected load",
				"Response times and latency targets are met",
				"Resource usage is measured and optimized",
				"Optimizations are backed by profiling evidence",
			},
			Strength: "Optimize a system for extreme performance under heavy load",
			Weakness: "Optimize for both speed and resource efficiency",
		},
		models.CategoryIntegration: {
			Title: "System integration",
			Requirements: []string{
				"Integrate a payments service with a REST API and webhooks",
				"Connect an inventory system to a message queue with at-least-once delivery",
				"Bridge a legacy SOAP service and a gRPC client",
				"Link an application with PostgreSQL and Redis consistently",
				"Synchronize user records between two systems of record",
				"Expose an internal service through a versioned public API",
			},
			Criteria: []string{
				"APIs are properly connected and versioned",
				"Data flows correctly between systems",
				"Integration points have error handling and retries",
				"Contracts between systems are documented",
			},
			Strength: "Integrate several heterogeneous systems with strict consistency guarantees",
			Weakness: "Design integration contracts with explicit error handling",
		},
		models.CategoryCollaboration: {
			Title: "Collaborative build",
			Requirements: []string{
				"Jointly design and implement a notification service",
				"Split a feature across participants and integrate the parts",
				"Agree on an API contract and implement both sides",
				"Plan, build and review a data export pipeline together",
			},
			Criteria: []string{
				"The plan assigns clear responsibilities",
				"Contributions integrate into one working solution",
				"Review feedback is addressed in the final solution",
				"Decisions and trade-offs are documented",
			},
			Strength: "Lead the integration of a multi-part solution across the team",
			Weakness: "Communicate interfaces and assumptions explicitly to collaborators",
		},
		models.CategoryDebugging: {
			Title: "Debugging exercise",
			Requirements: []string{
				"Diagnose an intermittent race condition in a worker pool",
				"Find the root cause of a memory leak in a long-running service",
				"Explain and fix a deadlock between two locks",
				"Trace a data corruption bug through a serialization layer",
				"Reproduce and fix a flaky integration test",
			},
			Criteria: []string{
				"Root cause is identified and explained",
				"Fix addresses the root cause rather than the symptom",
				"A regression test reproduces the original failure",
				"Debugging steps are described clearly",
			},
			Strength: "Debug a failure spanning several services with minimal reproduction data",
			Weakness: "Apply a systematic debugging method with hypotheses and evidence",
		},
		models.CategoryTesting: {
			Title: "Test engineering",
			Requirements: []string{
				"Write table-driven tests for a pricing engine",
				"Design an integration test suite for a REST service",
				"Add property-based tests for a parser",
				"Create fakes for external dependencies and test error paths",
				"Measure coverage and close the most important gaps",
			},
			Criteria: []string{
				"Tests cover the main paths and edge cases",
				"Tests are deterministic and isolated",
				"Failure messages make the broken behaviour obvious",
				"Test strategy is explained",
			},
			Strength: "Build a test strategy for a distributed system including fault injection",
			Weakness: "Cover error paths and edge cases with focused tests",
		},
		models.CategoryOptimization: {
			Title: "Optimization task",
			Requirements: []string{
				"Reduce the algorithmic complexity of a search routine",
				"Cut cloud costs of a batch pipeline without losing throughput",
				"Minimize allocations in a hot request path",
				"Tune connection pooling for a database-heavy service",
				"Replace a quadratic merge with a linear approach",
			},
			Criteria: []string{
				"Complexity or cost improvement is quantified",
				"Behaviour is unchanged after optimization",
				"Trade-offs of the optimization are explained",
				"Benchmarks compare before and after",
			},
			Strength: "Optimize an already efficient system for an order of magnitude gain",
			Weakness: "Quantify optimizations with before and after measurements",
		},
		models.CategoryInnovation: {
			Title: "Innovation proposal",
			Requirements: []string{
				"Propose a novel developer tool that shortens feedback loops",
				"Design an experiment to validate a new product idea",
				"Invent an approach to self-healing deployments",
				"Prototype a feature that applies a recent research result",
			},
			Criteria: []string{
				"Proposal is original and clearly motivated",
				"Proposal is feasible with an implementation path",
				"Risks and validation steps are identified",
				"Expected impact is measurable",
			},
			Strength: "Create an even more innovative proposal that builds on your successful track record",
			Weakness: "Create a proposal with enhanced validation and user feedback integration",
		},
	}
}
