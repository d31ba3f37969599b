// Package hcl provides the concrete HCL implementation of the config.Loader
// interface. It is responsible for file parsing and for translating the HCL
// schema into texture set definitions.
//
// A texture set file looks like:
//
//	texture_set "rock" {
//	  input "albedo" {
//	    source = "rock_albedo.png"
//	    format = "rgb8"
//	  }
//	  input "metal" {
//	    format  = "r8"
//	    default = [0]
//	  }
//	  module "surface" {
//	    type   = "pbr_surface"
//	    inputs = ["albedo", "normal", "rough", "metal"]
//	    parameters {
//	      flip_green = true
//	    }
//	  }
//	  packed_texture "T0" {
//	    r = "surface.BaseColor.r"
//	    g = "surface.BaseColor.g"
//	    b = "surface.BaseColor.b"
//	    a = "surface.Roughness.r"
//	  }
//	}
package hcl
