// Package config provides configuration management for deployctl.
//
// Configuration is loaded and merged in the following order, later sources
// overriding earlier ones:
//
//  1. Default Configuration (compiled in)
//     - The four application services, supporting resources, both registries
//       and the staging/production environment table
//
//  2. User Configuration (~/.config/deployctl/config.yaml)
//
//  3. Project Configuration (./.deployctl/config.yaml)
//
//  4. DEPLOYCTL_* environment variables, optionally read from a .env file
//
// A single file passed with --config replaces layers 2 and 3.
//
// # Configuration Structure
//
//	registries:
//	  frontend: "frontendregistry.azurecr.io"
//	  backend: "backendregistry.azurecr.io"
//	manifests:
//	  root: "k8s"
//	timeouts:
//	  serviceAvailable: 300s
//	  allDeployments: 600s
//	services:
//	  - name: order-service
//	    registry: backend
//	environments:
//	  - name: staging
//	    manifestDir: staging
//	    stagingVariant: true
//	    postSteps:
//	      - name: monitoring
//	        template: monitoring.yaml
//	        requiresCRD: servicemonitors.monitoring.coreos.com
//
// Named lists (services, supporting, environments) merge by name: an overlay
// entry replaces the base entry with the same name and new names are appended.
package config
